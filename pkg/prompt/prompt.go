// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Template file names, both for the embedded defaults and for override
// directories.
const (
	FileOrchestratorSystem = "orchestrator_system.txt"
	FileOrchestratorUser   = "orchestrator_user.txt"
	FileResponseSystem     = "response_system.txt"
	FileResponseUser       = "response_user.txt"
)

//go:embed defaults/*.txt
var defaults embed.FS

// Set holds the four templates of a pipeline.
type Set struct {
	OrchestratorSystem string
	OrchestratorUser   string
	ResponseSystem     string
	ResponseUser       string
}

// Default returns the embedded templates.
func Default() *Set {
	set, err := load(func(name string) ([]byte, error) {
		return fs.ReadFile(defaults, "defaults/"+name)
	})
	if err != nil {
		panic(fmt.Sprintf("embedded prompts are broken: %v", err))
	}
	return set
}

// LoadDir reads templates from dir. Files missing from dir fall back to the
// embedded defaults. An empty dir yields the defaults.
func LoadDir(dir string) (*Set, error) {
	if dir == "" {
		return Default(), nil
	}
	if info, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("prompt directory: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("prompt directory %s is not a directory", dir)
	}

	return load(func(name string) ([]byte, error) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return fs.ReadFile(defaults, "defaults/"+name)
		}
		return data, err
	})
}

func load(read func(string) ([]byte, error)) (*Set, error) {
	set := &Set{}
	for name, dst := range map[string]*string{
		FileOrchestratorSystem: &set.OrchestratorSystem,
		FileOrchestratorUser:   &set.OrchestratorUser,
		FileResponseSystem:     &set.ResponseSystem,
		FileResponseUser:       &set.ResponseUser,
	} {
		data, err := read(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		*dst = string(data)
	}
	return set, nil
}

// IsTemplateFile reports whether name is one of the template file names.
func IsTemplateFile(name string) bool {
	switch filepath.Base(name) {
	case FileOrchestratorSystem, FileOrchestratorUser, FileResponseSystem, FileResponseUser:
		return true
	}
	return false
}
