package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/google/shlex"
)

// runScript feeds a file of shell commands through the REPL one line at a
// time. Blank lines and lines starting with '#' are skipped.
func runScript(sh *ishell.Shell, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		args, err := shlex.Split(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if err := sh.Process(args...); err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
	}
	return sc.Err()
}

func cmdScript(c *ishell.Context, sh *ishell.Shell) {
	if len(c.Args) != 1 {
		c.Err(fmt.Errorf("usage: %s", c.Cmd.Help))
		return
	}
	if err := runScript(sh, c.Args[0]); err != nil {
		c.Err(err)
	}
}
