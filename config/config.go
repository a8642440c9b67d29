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

// Package config holds the driver's configuration surface (§6.6): the
// string and integer settings the original driver reads from its config
// file, expressed as a single TOML-tagged struct in the style of
// probe/probeconfig/config.go.
package config

import (
	"os"

	"github.com/naoina/toml"
)

// Config mirrors the original driver's config-file settings (§6.6). Every
// required string and integer from that section has a field here; optional
// ones are tagged `toml:",omitempty"` so a minimal config file is valid.
type Config struct {
	// Required strings.
	Name              string `toml:"mud_name"`
	MudlibDir         string `toml:"mudlib_dir"`
	BinDir            string `toml:"bin_dir"`
	LogDir            string `toml:"log_dir"`
	IncludeDirs       []string `toml:"include_dirs"`
	SaveBinariesDir   string `toml:"save_binaries_dir"`
	MasterFile        string `toml:"master_file"`
	SimulEfunFile     string `toml:"simul_efun_file"`
	DefaultErrorMsg   string `toml:"default_error_message"`
	DefaultFailMsg    string `toml:"default_fail_message"`
	GlobalIncludeFile string `toml:"global_include_file"`

	// Required integers.
	MudPort              int `toml:"mud_port"`
	AddressServerPort    int `toml:"address_server_port"`
	TimeToCleanUp        int `toml:"time_to_clean_up"`
	TimeToReset          int `toml:"time_to_reset"`
	TimeToSwap           int `toml:"time_to_swap"`
	CompilerStackSize    int `toml:"compiler_stack_size"`
	EvaluatorStackSize   int `toml:"evaluator_stack_size"`
	InheritChainSize     int `toml:"inherit_chain_size"`
	MaxEvalCost          int `toml:"max_eval_cost"`
	MaxLocalVariables    int `toml:"max_local_variables"`
	MaxCallDepth         int `toml:"max_call_depth"`
	MaxArraySize         int `toml:"max_array_size"`
	MaxBufferSize        int `toml:"max_buffer_size"`
	MaxMappingSize       int `toml:"max_mapping_size"`
	MaxStringLength      int `toml:"max_string_length"`
	MaxBitfieldBits      int `toml:"max_bitfield_bits"`
	MaxByteTransfer       int `toml:"max_byte_transfer"`
	MaxReadFileSize       int `toml:"max_read_file_size"`
	ReservedMemSize       int `toml:"reserved_mem_size"`
	StringHashTableSize   int `toml:"string_hash_table_size"`
	ObjectHashTableSize   int `toml:"object_hash_table_size"`
	LivingHashTableSize   int `toml:"living_hash_table_size"`

	// Ambient additions (§2.3 supplement): not in the original config-file
	// grammar, but needed by collaborators built for this driver.
	AdminAddr string `toml:"admin_addr,omitempty"`
	LevelDBDir string `toml:"leveldb_dir,omitempty"`
}

// Defaults mirrors probeconfig.go's pattern of a package-level struct
// literal new configs start from before a file is overlaid on top.
var Defaults = Config{
	MudPort:            3000,
	AddressServerPort:  3001,
	TimeToCleanUp:      3600,
	TimeToReset:        1800,
	TimeToSwap:         900,
	CompilerStackSize:  2000,
	EvaluatorStackSize: 4096,
	InheritChainSize:   16,
	MaxEvalCost:        1 << 20,
	MaxLocalVariables:  64,
	MaxCallDepth:       256,
	MaxArraySize:       1 << 20,
	MaxBufferSize:      1 << 20,
	MaxMappingSize:     1 << 18,
	MaxStringLength:    1 << 20,
	MaxBitfieldBits:    1 << 16,
	MaxByteTransfer:     1 << 16,
	MaxReadFileSize:     1 << 20,
	ReservedMemSize:     1 << 20,
	StringHashTableSize: 4099,
	ObjectHashTableSize: 2053,
	LivingHashTableSize: 251,
	AdminAddr:           "127.0.0.1:8091",
}

// Load reads and parses a TOML config file, starting from Defaults and
// overlaying the file's contents on top — an unset field in the file keeps
// its default rather than zeroing out (naoina/toml unmarshals onto the
// existing struct value rather than a fresh zero value).
func Load(path string) (*Config, error) {
	cfg := Defaults
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the handful of settings that must be non-empty/positive
// for the driver to boot at all (§6.6 "required strings"/"required
// integers" — validation of the rest is left to the individual
// collaborator that consumes it).
func (c *Config) Validate() error {
	required := map[string]string{
		"mud_name": c.Name, "mudlib_dir": c.MudlibDir, "bin_dir": c.BinDir,
		"log_dir": c.LogDir, "master_file": c.MasterFile,
	}
	for k, v := range required {
		if v == "" {
			return &MissingFieldError{Field: k}
		}
	}
	return nil
}

// MissingFieldError reports an empty required config field.
type MissingFieldError struct{ Field string }

func (e *MissingFieldError) Error() string { return "config: missing required field " + e.Field }
