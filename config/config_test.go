// Copyright 2024 The Mudcore Authors
// This file is part of Mudcore.
//
// Mudcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Mudcore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Mudcore. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "muddriver.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
mud_name = "TestMud"
mudlib_dir = "/mud/lib"
bin_dir = "/mud/bin"
log_dir = "/mud/log"
master_file = "/secure/master"
mud_port = 4000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "TestMud" {
		t.Fatalf("expected overlaid mud_name, got %q", cfg.Name)
	}
	if cfg.MudPort != 4000 {
		t.Fatalf("expected overlaid mud_port 4000, got %d", cfg.MudPort)
	}
	if cfg.AddressServerPort != Defaults.AddressServerPort {
		t.Fatalf("expected untouched field to keep its default, got %d", cfg.AddressServerPort)
	}
	if cfg.MaxEvalCost != Defaults.MaxEvalCost {
		t.Fatalf("expected MaxEvalCost default to survive overlay, got %d", cfg.MaxEvalCost)
	}
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	cfg := Defaults
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject an all-defaults config with no mud_name etc.")
	}
	cfg.Name = "TestMud"
	cfg.MudlibDir = "/mud/lib"
	cfg.BinDir = "/mud/bin"
	cfg.LogDir = "/mud/log"
	cfg.MasterFile = "/secure/master"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected a fully populated config to validate, got %v", err)
	}
}

func TestMissingFieldErrorMessage(t *testing.T) {
	err := &MissingFieldError{Field: "mud_name"}
	if err.Error() != "config: missing required field mud_name" {
		t.Fatalf("unexpected error message: %q", err.Error())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml")); err == nil {
		t.Fatal("expected an error loading a nonexistent config file")
	}
}
