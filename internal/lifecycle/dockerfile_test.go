// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dcsandbox/dcsandbox/internal/template"
)

func testTemplate() *template.Template {
	return &template.Template{
		Name:      "demo",
		BaseImage: "debian:bookworm",
		Features:  []string{"node@^20"},
		Env:       map[string]string{"FOO": "bar"},
		Ports:     []int{8080},
		CapabilityServers: []template.CapabilityServer{
			{Name: "filesystem", Command: "fs-server"},
		},
	}
}

func TestSynthesizeDockerfile(t *testing.T) {
	out, err := synthesizeDockerfile(testTemplate())
	if err != nil {
		t.Fatalf("synthesizeDockerfile: %v", err)
	}
	if !strings.HasPrefix(out, "FROM debian:bookworm\n") {
		t.Fatalf("Dockerfile does not start with FROM line:\n%s", out)
	}
	if !strings.Contains(out, "ENV FOO=bar\n") {
		t.Fatalf("Dockerfile missing ENV line:\n%s", out)
	}
	if !strings.Contains(out, "EXPOSE 8080\n") {
		t.Fatalf("Dockerfile missing EXPOSE line:\n%s", out)
	}
	if !strings.Contains(out, "WORKDIR /workspace\n") {
		t.Fatalf("Dockerfile missing WORKDIR line:\n%s", out)
	}
}

func TestWriteBuildContext(t *testing.T) {
	dir := t.TempDir()
	if err := writeBuildContext(dir, testTemplate(), "my-sandbox"); err != nil {
		t.Fatalf("writeBuildContext: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "Dockerfile")); err != nil {
		t.Fatalf("Dockerfile not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".devcontainer", "devcontainer.json")); err != nil {
		t.Fatalf("devcontainer.json not written: %v", err)
	}
	envContent, err := os.ReadFile(filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf(".env not written: %v", err)
	}
	if !strings.Contains(string(envContent), "FOO=bar") {
		t.Fatalf(".env missing FOO=bar:\n%s", envContent)
	}
}

func TestWriteBuildContextNoEnvSkipsDotEnv(t *testing.T) {
	dir := t.TempDir()
	tmpl := testTemplate()
	tmpl.Env = nil
	if err := writeBuildContext(dir, tmpl, "my-sandbox"); err != nil {
		t.Fatalf("writeBuildContext: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".env")); !os.IsNotExist(err) {
		t.Fatalf("expected no .env file when template has no env vars, stat err=%v", err)
	}
}
