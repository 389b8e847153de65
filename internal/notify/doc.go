// Package notify delivers kernel process lifecycle notifications over the
// netlink proc connector (CONFIG_PROC_EVENTS).
//
// A Subscription binds an AF_NETLINK/NETLINK_CONNECTOR socket to the
// CN_IDX_PROC multicast group and sends PROC_CN_MCAST_LISTEN. The kernel
// then multicasts a cn_msg-wrapped proc_event for every fork, exec, and
// exit on the system; a dedicated goroutine decodes them and hands
// fork/exec/exit events for whole processes (tgid == pid) to the
// subscriber's handler. Event timestamps arrive as nanoseconds since boot
// and are converted to wall-clock time on delivery.
//
// The connector is a lossy firehose: the kernel drops notifications when
// the socket buffer overruns, and it reports every process on the host,
// not just ours. Consumers are expected to filter by ancestry and to run
// their own existence poll as the authority on liveness.
package notify
