package cmd

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

type remoteOptions struct {
	host     string
	port     string
	keyPath  string
	unit     string
	insecure bool
}

// RemoteCmd inspects a MailGoal deployment running under systemd over SSH.
func RemoteCmd() *cobra.Command {
	opts := &remoteOptions{}

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Inspect the deployed service over SSH",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.host == "" {
				return fmt.Errorf("--host is required or set SSH_HOST env")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.host, "host", os.Getenv("SSH_HOST"), "SSH host (user@host) or set SSH_HOST env")
	cmd.PersistentFlags().StringVar(&opts.port, "port", "22", "SSH port")
	cmd.PersistentFlags().StringVar(&opts.keyPath, "key", "", "Path to SSH private key (default: ~/.ssh/id_ed25519)")
	cmd.PersistentFlags().StringVar(&opts.unit, "unit", "mailgoal", "systemd unit running the server")
	cmd.PersistentFlags().BoolVar(&opts.insecure, "insecure", false, "Skip host key verification")

	var lines int
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent journal lines of the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return remoteLogs(opts, lines)
		},
	}
	logsCmd.Flags().IntVarP(&lines, "lines", "n", 100, "Number of journal lines")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show the systemd state of the service",
			RunE: func(cmd *cobra.Command, args []string) error {
				return remoteStatus(opts)
			},
		},
		logsCmd,
		&cobra.Command{
			Use:   "restart",
			Short: "Restart the service",
			RunE: func(cmd *cobra.Command, args []string) error {
				return remoteRestart(opts)
			},
		},
	)

	return cmd
}

type unitState struct {
	Unit        string `json:"unit"`
	Load        string `json:"load"`
	Active      string `json:"active"`
	Sub         string `json:"sub"`
	Description string `json:"description"`
}

func remoteStatus(opts *remoteOptions) error {
	client, err := sshConnect(opts)
	if err != nil {
		return fmt.Errorf("ssh connect: %w", err)
	}
	defer client.Close()

	output, err := runSSHCommand(client, "systemctl list-units --type=service --all --no-pager --output=json")
	if err != nil {
		return fmt.Errorf("run command: %w", err)
	}

	units, err := matchUnits(output, opts.unit)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return fmt.Errorf("no unit matching %q", opts.unit)
	}

	fmt.Printf("%-40s %-8s %-10s %s\n", "UNIT", "ACTIVE", "SUB", "DESCRIPTION")
	for _, u := range units {
		fmt.Printf("%-40s %-8s %-10s %s\n", u.Unit, u.Active, u.Sub, u.Description)
	}
	return nil
}

// matchUnits picks the units named like unit (with or without .service or a
// template instance) from systemctl JSON output.
func matchUnits(output, unit string) ([]unitState, error) {
	var all []unitState
	if err := json.Unmarshal([]byte(output), &all); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	base := strings.TrimSuffix(unit, ".service")
	var matched []unitState
	for _, u := range all {
		name := strings.TrimSuffix(u.Unit, ".service")
		if name == base || strings.HasPrefix(name, base+"@") {
			matched = append(matched, u)
		}
	}

	slices.SortFunc(matched, func(a, b unitState) int {
		return strings.Compare(a.Unit, b.Unit)
	})
	return matched, nil
}

func remoteLogs(opts *remoteOptions, lines int) error {
	if lines <= 0 {
		return fmt.Errorf("--lines must be positive")
	}

	client, err := sshConnect(opts)
	if err != nil {
		return fmt.Errorf("ssh connect: %w", err)
	}
	defer client.Close()

	output, err := runSSHCommand(client, "journalctl --no-pager -o cat -n "+strconv.Itoa(lines)+" -u "+unitName(opts.unit))
	fmt.Print(output)
	if err != nil {
		return fmt.Errorf("journalctl: %w", err)
	}
	return nil
}

func remoteRestart(opts *remoteOptions) error {
	client, err := sshConnect(opts)
	if err != nil {
		return fmt.Errorf("ssh connect: %w", err)
	}
	defer client.Close()

	unit := unitName(opts.unit)
	fmt.Printf("Restarting %s...\n", unit)
	if output, err := runSSHCommand(client, "systemctl restart "+unit); err != nil {
		return fmt.Errorf("restart failed: %w\n%s", err, output)
	}

	output, _ := runSSHCommand(client, "systemctl is-active "+unit)
	fmt.Printf("%s is %s\n", unit, strings.TrimSpace(output))
	return nil
}

// unitName returns a shell-safe systemd unit name.
func unitName(unit string) string {
	if !strings.HasSuffix(unit, ".service") {
		unit += ".service"
	}
	return strconv.Quote(unit)
}

func runSSHCommand(client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	output, err := session.CombinedOutput(cmd)
	return string(output), err
}

func sshConnect(opts *remoteOptions) (*ssh.Client, error) {
	authMethods, err := authMethods(opts.keyPath)
	if err != nil {
		return nil, err
	}

	hostKeys, err := hostKeyCallback(opts.insecure)
	if err != nil {
		return nil, err
	}

	user, host := splitTarget(opts.host)
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: hostKeys,
	}

	addr := net.JoinHostPort(host, opts.port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return client, nil
}

func hostKeyCallback(insecure bool) (ssh.HostKeyCallback, error) {
	if insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	callback, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
	if err != nil {
		return nil, fmt.Errorf("load known_hosts (or pass --insecure): %w", err)
	}
	return callback, nil
}

func authMethods(keyPath string) ([]ssh.AuthMethod, error) {
	// Try ssh-agent first
	if keyPath == "" {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err == nil {
				agentClient := agent.NewClient(conn)
				keys, err := agentClient.List()
				if err == nil && len(keys) > 0 {
					return []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)}, nil
				}
				conn.Close()
			}
		}
	}

	key, err := readKey(keyPath)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse key (use ssh-add to load passphrase-protected keys): %w", err)
	}

	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

func readKey(keyPath string) ([]byte, error) {
	if keyPath != "" {
		key, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", keyPath, err)
		}
		return key, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}

	keyNames := []string{"id_ed25519", "id_rsa", "id_ecdsa"}
	for _, name := range keyNames {
		key, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err == nil {
			return key, nil
		}
	}

	return nil, fmt.Errorf("no SSH key found in ~/.ssh (tried: %v)", keyNames)
}

// splitTarget splits user@host. The user defaults to root.
func splitTarget(target string) (string, string) {
	user, host, ok := strings.Cut(target, "@")
	if !ok {
		return "root", target
	}
	return user, host
}
