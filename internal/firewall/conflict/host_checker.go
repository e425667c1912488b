// Copyright 2024 The Bolt Authors.
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

package conflict

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ProcNetChecker implements HostPortChecker by parsing /proc/net/tcp and
// /proc/net/tcp6 for the listening-socket sweep, falling back to netstat
// when /proc is unavailable (containerized or non-Linux hosts), and shells
// out to `docker port` for the Docker-published check.
type ProcNetChecker struct{}

func (ProcNetChecker) SystemPortInUse(ctx context.Context, port uint16) (bool, error) {
	if used, ok := procNetListening(port); ok {
		return used, nil
	}
	return netstatListening(ctx, port)
}

func (ProcNetChecker) DockerPortInUse(ctx context.Context, port uint16) (bool, error) {
	out, err := exec.CommandContext(ctx, "docker", "port", "--all").Output()
	if err != nil {
		// docker absent or daemon unreachable: treat as "no Docker
		// conflicts" rather than failing the whole allocation path.
		return false, nil
	}
	needle := fmt.Sprintf(":%d", port)
	return strings.Contains(string(out), needle), nil
}

// procNetListening reports whether port appears in local listening state
// (0A, TCP_LISTEN) in /proc/net/tcp or /proc/net/tcp6. ok is false if
// neither file could be read.
func procNetListening(port uint16) (used bool, ok bool) {
	// /proc/net/tcp prints the port as four zero-padded hex digits.
	hexPort := fmt.Sprintf("%04X", port)
	for _, path := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		ok = true
		scanner := bufio.NewScanner(f)
		scanner.Scan() // header line
		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			if len(fields) < 4 {
				continue
			}
			localAddr := fields[1] // "ADDR:PORT" in hex
			state := fields[3]
			parts := strings.SplitN(localAddr, ":", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[1], hexPort) {
				continue
			}
			if state == "0A" { // TCP_LISTEN
				f.Close()
				return true, true
			}
		}
		f.Close()
	}
	return false, ok
}

func netstatListening(ctx context.Context, port uint16) (bool, error) {
	out, err := exec.CommandContext(ctx, "netstat", "-tuln").Output()
	if err != nil {
		return false, err
	}
	needle := fmt.Sprintf(":%d", port)
	return strings.Contains(string(out), needle), nil
}
