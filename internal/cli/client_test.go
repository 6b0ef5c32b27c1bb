package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// --- fake front door ---

type frontDoor struct {
	successURL string
	failureURL string
	filename   string
	content    string
	pings      int
}

func newFrontDoor(t *testing.T) (*frontDoor, *httptest.Server) {
	t.Helper()

	fd := &frontDoor{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+submitPath, func(w http.ResponseWriter, r *http.Request) {
		fd.successURL = r.URL.Query().Get("success_url")
		fd.failureURL = r.URL.Query().Get("failure_url")

		file, header, err := r.FormFile(uploadField)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":"BAD_REQUEST","message":"missing file part config.json"}}`))
			return
		}
		defer file.Close()

		data, _ := io.ReadAll(file)
		fd.filename = header.Filename
		fd.content = string(data)

		w.Header().Set("Location", "/queue/item/2026-03-01-10-20-30-0_config.json")
		json.NewEncoder(w).Encode("processing")
	})

	mux.HandleFunc("GET "+pingPath, func(w http.ResponseWriter, r *http.Request) {
		fd.pings++
		json.NewEncoder(w).Encode("hello")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fd, srv
}

func writeDescriptor(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	return path
}

// --- Client ---

func TestClient_Submit(t *testing.T) {
	fd, srv := newFrontDoor(t)

	// Локальное имя файла не важно: на сервер уходит config.json.
	path := writeDescriptor(t, "study-17.json", `{"STUDY":17}`)

	res, err := NewClient(srv.URL).Submit(path, "http://web/ok?a=1", "http://web/fail")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if res.Status != "processing" {
		t.Errorf("Status = %q", res.Status)
	}
	if res.FileName != "2026-03-01-10-20-30-0_config.json" {
		t.Errorf("FileName = %q", res.FileName)
	}
	if fd.filename != uploadField {
		t.Errorf("uploaded filename = %q, want %q", fd.filename, uploadField)
	}
	if fd.content != `{"STUDY":17}` {
		t.Errorf("uploaded content = %q", fd.content)
	}
	if fd.successURL != "http://web/ok?a=1" || fd.failureURL != "http://web/fail" {
		t.Errorf("callbacks = %q / %q", fd.successURL, fd.failureURL)
	}
}

func TestClient_SubmitMissingFile(t *testing.T) {
	_, srv := newFrontDoor(t)

	_, err := NewClient(srv.URL).Submit(filepath.Join(t.TempDir(), "absent.json"), "u", "v")
	if err == nil || !strings.Contains(err.Error(), "read descriptor") {
		t.Fatalf("error = %v, want read descriptor error", err)
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"too many requests"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Ping()
	if err == nil || err.Error() != "RATE_LIMITED: too many requests" {
		t.Fatalf("error = %v", err)
	}
}

func TestClient_APIErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Ping()
	if err == nil || err.Error() != "API error: HTTP 502" {
		t.Fatalf("error = %v", err)
	}
}

// --- Commands ---

type cmdEnv struct {
	stdout, stderr bytes.Buffer
	clientFn       func() *Client
	outputFn       func() *Output
}

func newCmdEnv(srvURL string, jsonMode bool) *cmdEnv {
	env := &cmdEnv{}
	env.clientFn = func() *Client { return NewClient(srvURL) }
	env.outputFn = func() *Output { return NewOutputTo(jsonMode, &env.stdout, &env.stderr) }
	return env
}

func execute(cmd *cobra.Command, args ...string) error {
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SilenceUsage = true
	return cmd.Execute()
}

func TestSubmitCmd(t *testing.T) {
	fd, srv := newFrontDoor(t)
	env := newCmdEnv(srv.URL, false)
	path := writeDescriptor(t, "config.json", `{}`)

	err := execute(NewSubmitCmd(env.clientFn, env.outputFn),
		"--file", path, "--success-url", "http://web/ok", "--failure-url", "http://web/fail")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if fd.successURL != "http://web/ok" {
		t.Errorf("success_url = %q", fd.successURL)
	}
	if !strings.Contains(env.stdout.String(), "2026-03-01-10-20-30-0_config.json") {
		t.Errorf("stdout = %q", env.stdout.String())
	}
	if !strings.Contains(env.stderr.String(), "Upload accepted") {
		t.Errorf("stderr = %q", env.stderr.String())
	}
}

func TestSubmitCmd_JSON(t *testing.T) {
	_, srv := newFrontDoor(t)
	env := newCmdEnv(srv.URL, true)
	path := writeDescriptor(t, "config.json", `{}`)

	err := execute(NewSubmitCmd(env.clientFn, env.outputFn),
		"--file", path, "--success-url", "u", "--failure-url", "v")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	var res SubmitResult
	if err := json.Unmarshal(env.stdout.Bytes(), &res); err != nil {
		t.Fatalf("stdout is not JSON: %v (%q)", err, env.stdout.String())
	}
	if res.Status != "processing" || res.Location != "/queue/item/2026-03-01-10-20-30-0_config.json" {
		t.Errorf("result = %+v", res)
	}
}

func TestSubmitCmd_RequiresCallbacks(t *testing.T) {
	fd, srv := newFrontDoor(t)
	env := newCmdEnv(srv.URL, false)

	err := execute(NewSubmitCmd(env.clientFn, env.outputFn), "--success-url", "u")
	if err == nil {
		t.Fatal("expected error without --failure-url")
	}
	if fd.content != "" {
		t.Error("request sent without callbacks")
	}
}

func TestPingCmd(t *testing.T) {
	fd, srv := newFrontDoor(t)
	env := newCmdEnv(srv.URL, false)

	if err := execute(NewPingCmd(env.clientFn, env.outputFn)); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if fd.pings != 1 {
		t.Errorf("pings = %d, want 1", fd.pings)
	}
	if !strings.Contains(env.stdout.String(), "hello") {
		t.Errorf("stdout = %q", env.stdout.String())
	}
}

// --- Output ---

func TestOutput_Table(t *testing.T) {
	var stdout bytes.Buffer
	out := NewOutputTo(false, &stdout, io.Discard)

	if err := out.Table([]string{"STATUS", "FILE"}, [][]string{{"processing", "x_config.json"}}, nil); err != nil {
		t.Fatalf("Table: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[1], "------") {
		t.Errorf("separator = %q", lines[1])
	}
}

func TestOutput_Record(t *testing.T) {
	var stdout bytes.Buffer
	out := NewOutputTo(false, &stdout, io.Discard)

	err := out.Record([]Field{{"status", "processing"}, {"file", "x_config.json"}}, nil)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	want := "STATUS  processing\nFILE    x_config.json\n"
	if stdout.String() != want {
		t.Errorf("output = %q, want %q", stdout.String(), want)
	}
}

func TestOutput_JSONModeSilencesMessages(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(true, &stdout, &stderr)

	out.Success("Upload accepted")
	if err := out.Record(nil, map[string]string{"status": "processing"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if stderr.Len() != 0 {
		t.Errorf("stderr = %q, want empty", stderr.String())
	}
	if !strings.Contains(stdout.String(), `"status": "processing"`) {
		t.Errorf("stdout = %q", stdout.String())
	}
}
