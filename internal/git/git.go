// Package git shells out to the git CLI for the few plumbing reads the
// snapshot store needs.
package git

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

type Client interface {
	ShowFile(ref, path string) ([]byte, error)
}

type ExecClient struct{}

func NewExecClient() *ExecClient {
	return &ExecClient{}
}

// ShowFile returns the contents of path as committed at ref. Bare paths in
// git show resolve against the repository root; the ./ prefix pins them to
// the working directory instead, which is where relative snapshot dirs are
// interpreted.
func (c *ExecClient) ShowFile(ref, path string) ([]byte, error) {
	if !strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "./") {
		path = "./" + path
	}
	cmd := exec.Command("git", "show", fmt.Sprintf("%s:%s", ref, path))
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git show %s:%s: %v (%s)", ref, path, err, strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}
