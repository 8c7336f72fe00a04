package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/open-edge-platform/toolchain-packager/internal/utils/logger"
)

// IsCommandExist checks if a command is available on PATH.
func IsCommandExist(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}

// CommandString renders name and args as a single, copy-pasteable line for logs.
func CommandString(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	for _, s := range append([]string{name}, args...) {
		if s == "" || strings.ContainsAny(s, " \t\"'$") {
			s = strconv.Quote(s)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// ExecCmd runs name with args inside dir and returns the combined output.
func ExecCmd(ctx context.Context, dir string, name string, args ...string) (string, error) {
	log := logger.Logger()
	cmdStr := CommandString(name, args...)
	log.Debugf("Exec: [%s] in %s", cmdStr, dir)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	outputStr := string(output)

	if err != nil {
		if outputStr != "" {
			log.Info(outputStr)
		}
		return outputStr, fmt.Errorf("failed to exec %s: %w", cmdStr, err)
	}
	if outputStr != "" {
		log.Debug(outputStr)
	}
	return outputStr, nil
}

// ExecCmdWithStream runs name with args inside dir, forwarding every output
// line to the logger as it arrives. It returns the collected stdout.
func ExecCmdWithStream(ctx context.Context, dir string, name string, args ...string) (string, error) {
	log := logger.Logger()
	cmdStr := CommandString(name, args...)
	log.Debugf("Exec: [%s] in %s", cmdStr, dir)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stdout pipe for command %s: %w", cmdStr, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stderr pipe for command %s: %w", cmdStr, err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command %s: %w", cmdStr, err)
	}

	var (
		wg  sync.WaitGroup
		out strings.Builder
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		streamLines(stdout, func(line string) {
			out.WriteString(line)
			out.WriteByte('\n')
			log.Info(line)
		})
	}()
	go func() {
		defer wg.Done()
		streamLines(stderr, func(line string) { log.Info(line) })
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return out.String(), fmt.Errorf("failed to wait for command %s: %w", cmdStr, err)
	}
	return out.String(), nil
}

func streamLines(r io.Reader, emit func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			emit(line)
		}
	}
}
