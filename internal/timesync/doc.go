// Package timesync converts boot-relative timestamps to wall-clock time.
//
// Kernel process-event notifications carry timestamps as nanoseconds since
// system boot, and /proc/<pid>/stat reports process start times in clock
// ticks since boot. Both are converted to absolute wall-clock time by
// reading the system boot time from /proc/stat and adding the offset.
package timesync
