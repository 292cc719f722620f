package forward

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"time"
)

// commandWait bounds every netsh invocation so a wedged helper cannot
// stall the reconciliation loop.
const commandWait = 5 * time.Second

// Commander runs an OS networking-rule command. Tests substitute a
// recorder; production uses the netsh portproxy tool.
type Commander interface {
	Run(args ...string) error
}

// NetshCommander shells out to `netsh interface portproxy`.
type NetshCommander struct{}

func (NetshCommander) Run(args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandWait)
	defer cancel()

	full := append([]string{"interface", "portproxy"}, args...)
	cmd := exec.CommandContext(ctx, "netsh", full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		log.Printf("netsh %v failed: %v, output: %s", args, err, string(out))
		return err
	}
	return nil
}

func addArgs(listenAddr string, listenPort int, connectAddr string, connectPort int) []string {
	return []string{
		"add", "v4tov4",
		"listenaddress=" + listenAddr,
		"listenport=" + strconv.Itoa(listenPort),
		"connectaddress=" + connectAddr,
		"connectport=" + strconv.Itoa(connectPort),
	}
}

func deleteArgs(listenAddr string, listenPort int) []string {
	return []string{
		"delete", "v4tov4",
		"listenaddress=" + listenAddr,
		"listenport=" + strconv.Itoa(listenPort),
	}
}

// Rule describes one installed (or attempted) portproxy mapping.
type Rule struct {
	ListenAddress  string `json:"listen_address"`
	ListenPort     int    `json:"listen_port"`
	ConnectAddress string `json:"connect_address"`
	ConnectPort    int    `json:"connect_port"`
	Active         bool   `json:"active"`
}

func (r Rule) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d", r.ListenAddress, r.ListenPort, r.ConnectAddress, r.ConnectPort)
}
