package clientsession

import (
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"
)

// forwardedTCPPayload mirrors RFC 4254 §7.2's forwarded-tcpip channel-open
// payload: the address/port the server accepted a connection on, and the
// originator's address/port.
type forwardedTCPPayload struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

// ServeForwards handles `forwarded-tcpip` channel-open requests on conn for
// as long as it stays open, dialing target for each one and bridging both
// directions (§4.7/§B.4). Grounded on jhunt-go-sfab's agent.go bidirectional
// copy-and-wait pattern.
func ServeForwards(conn *ssh.Client, target string, logger pslog.Logger) {
	channels := conn.HandleChannelOpen("forwarded-tcpip")
	if channels == nil {
		return
	}
	for newChannel := range channels {
		go bridgeForward(newChannel, target, logger)
	}
}

func bridgeForward(newChannel ssh.NewChannel, target string, logger pslog.Logger) {
	var payload forwardedTCPPayload
	if err := ssh.Unmarshal(newChannel.ExtraData(), &payload); err != nil {
		_ = newChannel.Reject(ssh.ConnectionFailed, "malformed forwarded-tcpip payload")
		return
	}

	local, err := net.Dial("tcp", target)
	if err != nil {
		_ = newChannel.Reject(ssh.ConnectionFailed, "dial forward target: "+err.Error())
		return
	}
	defer local.Close()

	channel, reqs, err := newChannel.Accept()
	if err != nil {
		logger.Warn("forwarded-tcpip accept failed", "err", err)
		return
	}
	defer channel.Close()
	go ssh.DiscardRequests(reqs)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(local, channel)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(channel, local)
	}()
	wg.Wait()
}
