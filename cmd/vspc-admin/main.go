// Command vspc-admin is a thin, non-interactive driver for the vSPC-Admin
// protocol (§4.10): dial the admin listener, issue one command, print the
// result, exit. Raw-mode terminal handling and a full interactive shell are
// collaborator concerns per §1 Non-goals; this binary only exercises the
// wire protocol itself, one subcommand per invocation.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vspc/vspc/internal/conn"
	"github.com/vspc/vspc/internal/options"
	"github.com/vspc/vspc/internal/vmport"
)

var adminAddr string

func main() {
	root := &cobra.Command{
		Use:   "vspc-admin",
		Short: "drive the vSPC-Admin protocol against a running vspcd",
	}
	root.PersistentFlags().StringVar(&adminAddr, "addr", "127.0.0.1:13371", "vSPC admin listener address")

	root.AddCommand(listCmd(), connectCmd(), disconnectCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list registered VM ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return dial(func(admin *options.Admin) {
				admin.RequestPortList()
			}, func(ports []options.PortInfo) {
				for _, p := range ports {
					fmt.Printf("%s\t%s\t%s\n", p.PortID, p.VMName, p.ListeningURI)
				}
			}, nil)
		},
	}
}

func connectCmd() *cobra.Command {
	var modeFlag string
	cmd := &cobra.Command{
		Use:   "connect <port-id>",
		Short: "attach to a VM port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseMode(modeFlag)
			if err != nil {
				return err
			}
			portID := args[0]
			return dial(func(admin *options.Admin) {
				admin.ConnectToPort(portID, mode)
			}, nil, func(connected bool) {
				if connected {
					fmt.Println("connected")
				} else {
					fmt.Println("disconnected: port unavailable")
				}
			})
		},
	}
	cmd.Flags().StringVar(&modeFlag, "mode", "rw", "locking mode: ro, rw, excl, exclw")
	return cmd
}

func disconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "release the current VM port",
		RunE: func(cmd *cobra.Command, args []string) error {
			return dial(func(admin *options.Admin) {
				admin.DisconnectFromPort()
			}, nil, func(connected bool) {
				fmt.Println("disconnected")
			})
		},
	}
}

func parseMode(s string) (vmport.AccessMode, error) {
	switch s {
	case "ro":
		return vmport.ReadOnly, nil
	case "rw":
		return vmport.ReadWrite, nil
	case "excl":
		return vmport.Exclusive, nil
	case "exclw":
		return vmport.ExclWrite, nil
	default:
		return 0, fmt.Errorf("unknown locking mode %q", s)
	}
}

// dial opens the admin connection, fires action once the option is
// negotiated, and waits for exactly one reply event before returning.
func dial(action func(*options.Admin), onPortList func([]options.PortInfo), onConnectionState func(bool)) error {
	netConn, err := net.DialTimeout("tcp", adminAddr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", adminAddr, err)
	}
	defer netConn.Close()

	c := conn.New(netConn, zerolog.Nop())

	done := make(chan struct{})
	var admin *options.Admin
	admin = options.NewAdminClient(
		func() { action(admin) },
		func(ports []options.PortInfo) {
			if onPortList != nil {
				onPortList(ports)
			}
			close(done)
		},
		func(connected bool) {
			if onConnectionState != nil {
				onConnectionState(connected)
			}
			close(done)
		},
		zerolog.Nop(),
	)
	if err := c.Register(admin); err != nil {
		return fmt.Errorf("register VSPC-ADMIN: %w", err)
	}

	go func() {
		for {
			if _, err := c.Next(); err != nil {
				close(done)
				return
			}
		}
	}()

	<-done
	return nil
}
