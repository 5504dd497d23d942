package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadDir loads the CUE package in dir and compiles it.
func LoadDir(dir string) (*Definition, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("definitions directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", formatCUEError(inst.Err))
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", formatCUEError(err))
	}
	return Compile(v)
}

// CompileString compiles CUE source. filename is used in error positions.
func CompileString(src, filename string) (*Definition, error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	return Compile(v)
}
