// Copyright 2022 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.
package flags

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"
)

// DirectoryString is custom type which is registered in the flags library which cli uses for
// argument parsing. This allows us to expand Value to an absolute path when
// the argument is parsed.
type DirectoryString string

func (s *DirectoryString) String() string {
	return string(*s)
}

func (s *DirectoryString) Set(value string) error {
	*s = DirectoryString(expandPath(value))
	return nil
}

var (
	_ cli.Flag              = (*DirectoryFlag)(nil)
	_ cli.RequiredFlag      = (*DirectoryFlag)(nil)
	_ cli.VisibleFlag       = (*DirectoryFlag)(nil)
	_ cli.DocGenerationFlag = (*DirectoryFlag)(nil)
	_ cli.CategorizableFlag = (*DirectoryFlag)(nil)
)

// DirectoryFlag is custom cli.Flag type which expand the received string to an absolute path.
// e.g. ~/.txpool -> /home/username/.txpool
// DirectoryFlag 将接收到的字符串扩展为绝对路径。
type DirectoryFlag struct {
	Name string

	Category    string
	DefaultText string
	Usage       string

	Required   bool
	Hidden     bool
	HasBeenSet bool

	Value DirectoryString

	Aliases []string
	EnvVars []string
}

// For cli.Flag:

func (f *DirectoryFlag) Names() []string { return append([]string{f.Name}, f.Aliases...) }
func (f *DirectoryFlag) IsSet() bool     { return f.HasBeenSet }
func (f *DirectoryFlag) String() string  { return cli.FlagStringer(f) }

// Apply called by cli library, grabs variable from environment (if in env)
// and adds variable to flag set for parsing.
func (f *DirectoryFlag) Apply(set *flag.FlagSet) error {
	for _, envVar := range f.EnvVars {
		envVar = strings.TrimSpace(envVar)
		if value, found := syscall.Getenv(envVar); found {
			f.Value.Set(value)
			f.HasBeenSet = true
			break
		}
	}
	eachName(f, func(name string) {
		set.Var(&f.Value, name, f.Usage)
	})
	return nil
}

// For cli.RequiredFlag:

func (f *DirectoryFlag) IsRequired() bool { return f.Required }

// For cli.VisibleFlag:

func (f *DirectoryFlag) IsVisible() bool { return !f.Hidden }

// For cli.CategorizableFlag:

func (f *DirectoryFlag) GetCategory() string { return f.Category }

// For cli.DocGenerationFlag:

func (f *DirectoryFlag) TakesValue() bool     { return true }
func (f *DirectoryFlag) GetUsage() string     { return f.Usage }
func (f *DirectoryFlag) GetValue() string     { return f.Value.String() }
func (f *DirectoryFlag) GetEnvVars() []string { return f.EnvVars }
func (f *DirectoryFlag) GetDefaultText() string {
	if f.DefaultText != "" {
		return f.DefaultText
	}
	return f.GetValue()
}

var (
	_ cli.Flag              = (*Uint256Flag)(nil)
	_ cli.RequiredFlag      = (*Uint256Flag)(nil)
	_ cli.VisibleFlag       = (*Uint256Flag)(nil)
	_ cli.DocGenerationFlag = (*Uint256Flag)(nil)
	_ cli.CategorizableFlag = (*Uint256Flag)(nil)
)

// Uint256Flag is a command line flag that accepts 256 bit unsigned integers
// in decimal or 0x prefixed hexadecimal syntax. Fees, amounts and balances
// use it.
//
// Uint256Flag 接受十进制或 0x 前缀十六进制的 256 位无符号整数。
type Uint256Flag struct {
	Name string

	Category    string
	DefaultText string
	Usage       string

	Required   bool
	Hidden     bool
	HasBeenSet bool

	Value        *uint256.Int
	defaultValue *uint256.Int

	Aliases []string
	EnvVars []string
}

// For cli.Flag:

func (f *Uint256Flag) Names() []string { return append([]string{f.Name}, f.Aliases...) }
func (f *Uint256Flag) IsSet() bool     { return f.HasBeenSet }
func (f *Uint256Flag) String() string  { return cli.FlagStringer(f) }

func (f *Uint256Flag) Apply(set *flag.FlagSet) error {
	// Set default value so that environment wont be able to overwrite it
	if f.Value == nil {
		f.Value = new(uint256.Int)
	}
	f.defaultValue = new(uint256.Int).Set(f.Value)
	for _, envVar := range f.EnvVars {
		envVar = strings.TrimSpace(envVar)
		if value, found := syscall.Getenv(envVar); found {
			if err := (*uint256Value)(f.Value).Set(value); err != nil {
				return fmt.Errorf("could not parse %q from environment variable %q for flag %s: %v", value, envVar, f.Name, err)
			}
			f.HasBeenSet = true
			break
		}
	}
	eachName(f, func(name string) {
		set.Var((*uint256Value)(f.Value), name, f.Usage)
	})
	return nil
}

// For cli.RequiredFlag:

func (f *Uint256Flag) IsRequired() bool { return f.Required }

// For cli.VisibleFlag:

func (f *Uint256Flag) IsVisible() bool { return !f.Hidden }

// For cli.CategorizableFlag:

func (f *Uint256Flag) GetCategory() string { return f.Category }

// For cli.DocGenerationFlag:

func (f *Uint256Flag) TakesValue() bool     { return true }
func (f *Uint256Flag) GetUsage() string     { return f.Usage }
func (f *Uint256Flag) GetValue() string     { return f.Value.Dec() }
func (f *Uint256Flag) GetEnvVars() []string { return f.EnvVars }
func (f *Uint256Flag) GetDefaultText() string {
	if f.DefaultText != "" {
		return f.DefaultText
	}
	if f.defaultValue == nil {
		return "0"
	}
	return f.defaultValue.Dec()
}

// uint256Value turns *uint256.Int into a flag.Value
type uint256Value uint256.Int

func (v *uint256Value) String() string {
	if v == nil {
		return ""
	}
	return (*uint256.Int)(v).Dec()
}

func (v *uint256Value) Set(s string) error {
	parsed, err := ParseUint256(s)
	if err != nil {
		return err
	}
	(*uint256.Int)(v).Set(parsed)
	return nil
}

// ParseUint256 parses s in decimal or 0x prefixed hexadecimal syntax.
func ParseUint256(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return uint256.FromHex("0x" + s[2:])
	}
	return uint256.FromDecimal(s)
}

// GlobalUint256 returns the value of a Uint256Flag from the flag set.
func GlobalUint256(ctx *cli.Context, name string) *uint256.Int {
	val := ctx.Generic(name)
	if val == nil {
		return nil
	}
	return (*uint256.Int)(val.(*uint256Value))
}

// Expands a file path
// 1. replace tilde with users home dir
// 2. expands embedded environment variables
// 3. cleans the path, e.g. /a/b/../c -> /a/c
// Note, it has limitations, e.g. ~someuser/tmp will not be expanded
func expandPath(p string) string {
	// Named pipes are not file paths on windows, ignore
	if strings.HasPrefix(p, `\\.\pipe`) {
		return p
	}
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "~\\") {
		if home := HomeDir(); home != "" {
			p = home + p[1:]
		}
	}
	return filepath.Clean(os.ExpandEnv(p))
}

func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

func eachName(f cli.Flag, fn func(string)) {
	for _, name := range f.Names() {
		name = strings.Trim(name, " ")
		fn(name)
	}
}
