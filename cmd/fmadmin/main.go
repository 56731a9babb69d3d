// Command fmadmin is a one-shot client for the fabric manager's admin
// socket: it opens a connection, sends a single framed request, reads the
// matching response, and exits.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cxlfabric/fabricmanager/internal/wire"
)

var adminSocketPath string

func main() {
	root := &cobra.Command{
		Use:   "fmadmin",
		Short: "fmadmin sends one-shot admin commands to a running fabric manager",
	}
	root.PersistentFlags().StringVar(&adminSocketPath, "socket", "", "path to the fabric manager's admin socket (required)")
	root.MarkPersistentFlagRequired("socket")
	root.AddCommand(failCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func failCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fail <replica_index>",
		Short: "mark a backing replica device unhealthy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.ParseUint(args[0], 10, 8)
			if err != nil {
				return fmt.Errorf("invalid replica_index %q: %w", args[0], err)
			}
			status, err := sendAdminFailReplica(adminSocketPath, uint8(idx))
			if err != nil {
				return err
			}
			fmt.Printf("replica %d: %s\n", idx, status)
			if status != wire.StatusOK {
				os.Exit(1)
			}
			return nil
		},
	}
}

// sendAdminFailReplica opens a fresh connection to the admin socket, sends
// one AdminFailReplicaReq, and returns the status from the matching
// response. The admin socket serves exactly one request per connection.
func sendAdminFailReplica(socketPath string, deviceIndex uint8) (wire.Status, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return 0, fmt.Errorf("connecting to admin socket: %w", err)
	}
	defer conn.Close()

	req := &wire.AdminFailReplicaReq{DeviceIndex: deviceIndex}
	if _, err := conn.Write(wire.Marshal(wire.TagAdminFailReplicaReq, req)); err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}

	bodyLen, _ := wire.TagAdminFailReplicaResp.BodyLen()
	frame := make([]byte, 1+bodyLen)
	if _, err := readFull(conn, frame); err != nil {
		return 0, fmt.Errorf("reading response: %w", err)
	}

	var resp wire.AdminFailReplicaResp
	if err := wire.Unmarshal(wire.TagAdminFailReplicaResp, frame[1:], &resp); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}
	return resp.Status, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
