package services

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// fakeRunner stands in for the external tools. It implements real dump,
// tar.gz and gzip semantics in-process so backup/restore round-trips run
// against genuine artifacts without any binaries installed.
type fakeRunner struct {
	mu sync.Mutex

	dumpPayload string
	dumpArgs    [][]string
	restoredSQL []byte

	failDump           bool
	failArchive        bool
	failRestoreDump    bool
	failRestoreArchive bool

	// When set, dump invocations signal dumpStarted once, then wait for
	// blockDump to close.
	dumpStarted chan struct{}
	blockDump   chan struct{}
	startedOnce sync.Once
}

const defaultDumpPayload = "-- statevault dump\nCREATE TABLE posts (id INT);\nINSERT INTO posts VALUES (1);\n"

func newFakeRunner() *fakeRunner {
	return &fakeRunner{dumpPayload: defaultDumpPayload}
}

func (f *fakeRunner) Run(_ context.Context, c Command) error {
	switch filepath.Base(c.Name) {
	case "mysqldump":
		return f.runDump(c)
	case "mysql":
		return f.runRestore(c)
	case "tar":
		return f.runTar(c)
	case "gzip":
		return f.runGzip(c)
	default:
		return &ProcessError{Name: c.Name, ExitCode: 127, Stderr: "command not found"}
	}
}

func (f *fakeRunner) runDump(c Command) error {
	if f.dumpStarted != nil {
		f.startedOnce.Do(func() { close(f.dumpStarted) })
	}
	if f.blockDump != nil {
		<-f.blockDump
	}

	f.mu.Lock()
	f.dumpArgs = append(f.dumpArgs, append([]string(nil), c.Args...))
	fail := f.failDump
	payload := f.dumpPayload
	f.mu.Unlock()

	if fail {
		return &ProcessError{Name: "mysqldump", ExitCode: 2, Stderr: "Got error: 2003: Can't connect to MySQL server"}
	}
	_, err := io.WriteString(c.Stdout, payload)
	return err
}

func (f *fakeRunner) runRestore(c Command) error {
	if f.failRestoreDump {
		return &ProcessError{Name: "mysql", ExitCode: 1, Stderr: "ERROR 1045 (28000): Access denied"}
	}
	data, err := io.ReadAll(c.Stdin)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.restoredSQL = data
	f.mu.Unlock()
	return nil
}

func (f *fakeRunner) lastDumpArgs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.dumpArgs) == 0 {
		return nil
	}
	return f.dumpArgs[len(f.dumpArgs)-1]
}

func (f *fakeRunner) runTar(c Command) error {
	switch c.Args[0] {
	case "-czf":
		if f.failArchive {
			return &ProcessError{Name: "tar", ExitCode: 2, Stderr: "tar: Cowardly refusing to create an empty archive"}
		}
		return f.createArchive(c.Args)
	case "-xzf":
		if f.failRestoreArchive {
			return &ProcessError{Name: "tar", ExitCode: 2, Stderr: "tar: Unexpected EOF in archive"}
		}
		return f.extractArchive(c.Args)
	default:
		return &ProcessError{Name: "tar", ExitCode: 64, Stderr: "unknown mode"}
	}
}

// createArchive handles "-czf dest -C root [paths...]" and
// "-czf dest -C root -T listfile".
func (f *fakeRunner) createArchive(args []string) error {
	dest := args[1]
	root := "/"
	var members []string

	for i := 2; i < len(args); i++ {
		switch args[i] {
		case "-C":
			i++
			root = args[i]
		case "-T":
			i++
			listed, err := readLines(args[i])
			if err != nil {
				return err
			}
			members = append(members, listed...)
		default:
			members = append(members, args[i])
		}
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	for _, member := range members {
		full := filepath.Join(root, member)
		err := filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			hdr := &tar.Header{Name: filepath.ToSlash(rel), Mode: 0o644, Size: info.Size(), ModTime: info.ModTime()}
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			_, err = tw.Write(data)
			return err
		})
		if err != nil {
			return &ProcessError{Name: "tar", ExitCode: 2, Stderr: err.Error()}
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// extractArchive handles "-xzf artifact -C dest".
func (f *fakeRunner) extractArchive(args []string) error {
	artifact := args[1]
	dest := args[3]

	in, err := os.Open(artifact)
	if err != nil {
		return &ProcessError{Name: "tar", ExitCode: 2, Stderr: err.Error()}
	}
	defer in.Close()
	gz, err := gzip.NewReader(in)
	if err != nil {
		return &ProcessError{Name: "tar", ExitCode: 2, Stderr: err.Error()}
	}
	tr := tar.NewReader(gz)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &ProcessError{Name: "tar", ExitCode: 2, Stderr: err.Error()}
		}
		target := filepath.Join(dest, filepath.FromSlash(hdr.Name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return err
		}
	}
}

// runGzip handles "-f path" (compress, replaces path with path.gz) and
// "-d -f path" (decompress, strips the .gz suffix).
func (f *fakeRunner) runGzip(c Command) error {
	if c.Args[0] == "-d" {
		src := c.Args[len(c.Args)-1]
		in, err := os.Open(src)
		if err != nil {
			return &ProcessError{Name: "gzip", ExitCode: 1, Stderr: err.Error()}
		}
		gz, err := gzip.NewReader(in)
		if err != nil {
			in.Close()
			return &ProcessError{Name: "gzip", ExitCode: 1, Stderr: err.Error()}
		}
		data, err := io.ReadAll(gz)
		in.Close()
		if err != nil {
			return &ProcessError{Name: "gzip", ExitCode: 1, Stderr: err.Error()}
		}
		if err := os.WriteFile(strings.TrimSuffix(src, ".gz"), data, 0o600); err != nil {
			return err
		}
		return os.Remove(src)
	}

	src := c.Args[len(c.Args)-1]
	data, err := os.ReadFile(src)
	if err != nil {
		return &ProcessError{Name: "gzip", ExitCode: 1, Stderr: err.Error()}
	}
	out, err := os.Create(src + ".gz")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	if _, err := gz.Write(data); err != nil {
		out.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
