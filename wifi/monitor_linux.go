package wifi

import (
	"context"
	"encoding/binary"
	"net"
	"syscall"

	errw "github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Monitor watches rtnetlink for IPv4 address changes on one interface. It
// runs on its own goroutine and carries no interpretation logic: it only
// reports "address appeared" / "address removed" through the callbacks,
// which the composition root marshals onto the event loop.
type Monitor struct {
	logger  *zap.SugaredLogger
	iface   string
	onReady func()
	onLost  func()
}

func NewMonitor(logger *zap.SugaredLogger, iface string, onReady, onLost func()) *Monitor {
	return &Monitor{
		logger:  logger,
		iface:   iface,
		onReady: onReady,
		onLost:  onLost,
	}
}

// addrEvent is one parsed RTM_NEWADDR/RTM_DELADDR for an IPv4 address.
type addrEvent struct {
	ready   bool
	ifIndex int
}

// parseAddrEvents extracts the IPv4 address events from one netlink read.
func parseAddrEvents(buf []byte) ([]addrEvent, error) {
	msgs, err := syscall.ParseNetlinkMessage(buf)
	if err != nil {
		return nil, errw.Wrap(err, "parsing netlink messages")
	}

	var events []addrEvent
	for _, msg := range msgs {
		if msg.Header.Type != unix.RTM_NEWADDR && msg.Header.Type != unix.RTM_DELADDR {
			continue
		}
		if len(msg.Data) < unix.SizeofIfAddrmsg {
			continue
		}
		// struct ifaddrmsg: family, prefixlen, flags, scope, index
		if msg.Data[0] != unix.AF_INET {
			continue
		}
		events = append(events, addrEvent{
			ready:   msg.Header.Type == unix.RTM_NEWADDR,
			ifIndex: int(binary.NativeEndian.Uint32(msg.Data[4:8])),
		})
	}
	return events, nil
}

// Run blocks until ctx is cancelled, reporting address changes for the
// monitored interface.
func (m *Monitor) Run(ctx context.Context) error {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_ROUTE)
	if err != nil {
		return errw.Wrap(err, "opening netlink socket")
	}
	defer unix.Close(fd)

	if err := unix.Bind(fd, &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: unix.RTMGRP_IPV4_IFADDR,
	}); err != nil {
		return errw.Wrap(err, "binding netlink socket")
	}

	m.logger.Infof("address monitor watching %s", m.iface)

	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return nil
		}

		// Short poll timeout so cancellation is honored promptly.
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 1000)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errw.Wrap(err, "polling netlink socket")
		}
		if n == 0 {
			continue
		}

		read, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errw.Wrap(err, "reading netlink socket")
		}
		if read <= 0 {
			continue
		}

		events, err := parseAddrEvents(buf[:read])
		if err != nil {
			m.logger.Warn(err)
			continue
		}

		for _, ev := range events {
			link, err := net.InterfaceByIndex(ev.ifIndex)
			if err != nil || link.Name != m.iface {
				continue
			}
			if ev.ready {
				m.logger.Debugf("%s IPv4 address added", m.iface)
				m.onReady()
			} else {
				m.logger.Debugf("%s IPv4 address removed", m.iface)
				m.onLost()
			}
		}
	}
}
