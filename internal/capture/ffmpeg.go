package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/memorable/voicenotes/internal/config"
)

// FFmpegBackend captures the default microphone through an ffmpeg child
// process encoding AAC into an M4A container.
type FFmpegBackend struct {
	cfg *config.Config

	mu        sync.Mutex
	cmd       *exec.Cmd
	outFile   string
	paused    bool
	stderrBuf strings.Builder
}

func NewFFmpegBackend(cfg *config.Config) *FFmpegBackend {
	return &FFmpegBackend{cfg: cfg}
}

func (b *FFmpegBackend) Type() BackendType { return BackendTypeFFmpeg }

// Start spawns the ffmpeg capture process. A start while a previous
// process is still alive reports ErrBusy, which the recorder recovers
// from with a stop-and-retry.
func (b *FFmpegBackend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cmd != nil {
		return ErrBusy
	}

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("%w: ffmpeg not found", ErrDeviceUnsupported)
	}

	b.outFile = filepath.Join(os.TempDir(), "voicenotes-capture-"+uuid.NewString()+".m4a")
	b.stderrBuf.Reset()
	b.paused = false

	args := inputArgs(b.cfg.Audio.Device)
	args = append(args,
		"-ac", fmt.Sprintf("%d", b.cfg.Audio.Channels),
		"-ar", fmt.Sprintf("%d", b.cfg.Audio.SampleRate),
		"-c:a", "aac",
		"-y",
		b.outFile,
	)

	slog.Debug("starting ffmpeg capture", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	b.cmd = cmd
	go b.readOutput(stderr)

	return nil
}

// Stop terminates the capture process and returns the encoded payload.
func (b *FFmpegBackend) Stop() (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cmd == nil {
		return nil, fmt.Errorf("no capture in progress")
	}

	// A paused process cannot handle SIGINT, resume it first.
	if b.paused && b.cmd.Process != nil {
		_ = b.cmd.Process.Signal(syscall.SIGCONT)
		b.paused = false
	}

	if err := b.stopProcess(); err != nil {
		b.cmd = nil
		return nil, err
	}
	b.cmd = nil

	data, err := os.ReadFile(b.outFile)
	os.Remove(b.outFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture output: %w", err)
	}

	slog.Debug("ffmpeg capture stopped", "bytes", len(data))
	return &Result{Data: data, MimeType: "audio/aac"}, nil
}

// Pause suspends the capture process. Encoding stops until Resume.
func (b *FFmpegBackend) Pause() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd == nil || b.cmd.Process == nil || b.paused {
		return nil
	}
	if err := b.cmd.Process.Signal(syscall.SIGSTOP); err != nil {
		return fmt.Errorf("failed to pause capture: %w", err)
	}
	b.paused = true
	return nil
}

func (b *FFmpegBackend) Resume() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd == nil || b.cmd.Process == nil || !b.paused {
		return nil
	}
	if err := b.cmd.Process.Signal(syscall.SIGCONT); err != nil {
		return fmt.Errorf("failed to resume capture: %w", err)
	}
	b.paused = false
	return nil
}

// stopProcess sends SIGINT so ffmpeg finalizes the container, falling back
// to SIGKILL after a timeout.
func (b *FFmpegBackend) stopProcess() error {
	if b.cmd.Process != nil {
		if err := b.cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("failed to send interrupt to ffmpeg", "error", err)
			b.cmd.Process.Kill()
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- b.cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				// 255 and signal exits are normal after an interrupt.
				if exitErr.ExitCode() == 255 {
					return nil
				}
				if exitErr.ProcessState != nil {
					state := exitErr.ProcessState.String()
					if state == "signal: interrupt" || state == "signal: killed" {
						return nil
					}
				}
			}
			slog.Debug("ffmpeg stderr", "output", b.stderrBuf.String())
			return fmt.Errorf("ffmpeg capture failed: %w", err)
		}
		return nil

	case <-time.After(5 * time.Second):
		slog.Warn("ffmpeg did not exit within timeout, force killing")
		if b.cmd.Process != nil {
			b.cmd.Process.Kill()
		}
		<-done
		return nil
	}
}

func (b *FFmpegBackend) readOutput(pipe io.ReadCloser) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		b.mu.Lock()
		b.stderrBuf.WriteString(line + "\n")
		b.mu.Unlock()
		slog.Debug("ffmpeg output", "line", line)
	}
	pipe.Close()
}

// inputArgs builds the platform input selection for ffmpeg.
func inputArgs(device string) []string {
	switch runtime.GOOS {
	case "darwin":
		in := ":default"
		if device != "" {
			in = ":" + device
		}
		return []string{"-f", "avfoundation", "-i", in}
	default:
		in := "default"
		if device != "" {
			in = device
		}
		return []string{"-f", "pulse", "-i", in}
	}
}
