// Command launcher is the host-side counterpart to cmd/sidecar: it spawns
// the sidecar binary as a child process, performs the stdout port-discovery
// handshake (spec.md §4.3), and guarantees the child is killed when the
// launcher itself exits. This is mechanism 1 of the lifecycle contract; the
// sidecar's own parent-liveness heartbeat (internal/sidecar.Monitor) is
// mechanism 2, a belt-and-suspenders guard for the case where the launcher
// dies without reaching its cleanup path.
//
// In production this process is embedded in the desktop shell; this CLI
// exists so the sidecar can be exercised standalone during development.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cutie-launcher",
	Short: "Launch the Cutie sidecar and supervise its lifecycle",
	Long: `cutie-launcher starts the Cutie sidecar as a child process, waits for
it to announce its bound port over stdout, and prints the port for the
calling shell to consume. It force-kills the sidecar when it exits, by
signal or otherwise.`,
	RunE: runLauncher,
}

func init() {
	rootCmd.Flags().String("sidecar-path", "./cutie-sidecar", "Path to the sidecar binary")
	rootCmd.Flags().String("db-path", "cutie.db", "Path passed through as CUTIE_DB_PATH")
	rootCmd.Flags().Duration("handshake-timeout", 10*time.Second, "How long to wait for the sidecar's SIDECAR_PORT line")
	rootCmd.Flags().Bool("dev", false, "Pass through CUTIE_DEV_MODE=true")
}

// portAnnouncementPrefix is the line contract internal/sidecar.AnnouncePort writes.
const portAnnouncementPrefix = "SIDECAR_PORT="

func runLauncher(cmd *cobra.Command, args []string) error {
	sidecarPath, _ := cmd.Flags().GetString("sidecar-path")
	dbPath, _ := cmd.Flags().GetString("db-path")
	handshakeTimeout, _ := cmd.Flags().GetDuration("handshake-timeout")
	devMode, _ := cmd.Flags().GetBool("dev")

	child := exec.Command(sidecarPath)
	child.Env = append(os.Environ(),
		"CUTIE_DB_PATH="+dbPath,
		"CUTIE_PARENT_PID="+strconv.Itoa(os.Getpid()),
		"CUTIE_DEV_MODE="+strconv.FormatBool(devMode),
	)
	child.Stderr = os.Stderr

	stdout, err := child.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach to sidecar stdout: %w", err)
	}

	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start sidecar: %w", err)
	}
	fmt.Fprintf(os.Stderr, "launcher: sidecar started, pid %d\n", child.Process.Pid)

	// Whatever happens from here, the child must not outlive us.
	var killOnce sync.Once
	killChild := func() {
		killOnce.Do(func() {
			if child.Process == nil {
				return
			}
			fmt.Fprintf(os.Stderr, "launcher: killing sidecar pid %d\n", child.Process.Pid)
			_ = child.Process.Kill()
		})
	}
	defer killChild()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "launcher: received shutdown signal")
		killChild()
	}()

	port, err := awaitPortAnnouncement(stdout, handshakeTimeout)
	if err != nil {
		killChild()
		_ = child.Wait()
		return fmt.Errorf("sidecar handshake failed: %w", err)
	}
	fmt.Printf("%s%d\n", portAnnouncementPrefix, port)
	fmt.Fprintf(os.Stderr, "launcher: sidecar listening on port %d\n", port)

	// Drain the rest of the child's stdout so it never blocks on a full
	// pipe buffer; we have no further use for it once the handshake
	// completes.
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
		}
	}()

	if err := child.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			fmt.Fprintf(os.Stderr, "launcher: sidecar exited with status %d\n", exitErr.ExitCode())
			return nil
		}
		return fmt.Errorf("sidecar wait failed: %w", err)
	}
	fmt.Fprintln(os.Stderr, "launcher: sidecar exited cleanly")
	return nil
}

// awaitPortAnnouncement scans the child's stdout line by line until it finds
// the well-known "SIDECAR_PORT=<n>" line internal/sidecar.AnnouncePort
// writes, or the timeout elapses.
func awaitPortAnnouncement(stdout io.Reader, timeout time.Duration) (int, error) {
	type result struct {
		port int
		err  error
	}
	done := make(chan result, 1)

	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, portAnnouncementPrefix) {
				continue
			}
			portStr := strings.TrimPrefix(line, portAnnouncementPrefix)
			port, err := strconv.Atoi(portStr)
			if err != nil {
				done <- result{err: fmt.Errorf("malformed port announcement %q: %w", line, err)}
				return
			}
			done <- result{port: port}
			return
		}
		done <- result{err: fmt.Errorf("sidecar stdout closed before announcing a port")}
	}()

	select {
	case r := <-done:
		return r.port, r.err
	case <-time.After(timeout):
		return 0, fmt.Errorf("timed out after %s waiting for port announcement", timeout)
	}
}
