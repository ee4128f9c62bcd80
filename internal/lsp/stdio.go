package lsp

import (
	"io"
	"os"
)

// Stdio bridges the process's stdin and stdout into the single
// ReadWriteCloser the JSON-RPC stream wants. Editors launch the server with
// the protocol on these descriptors, which is why all logging goes to stderr.
func Stdio() io.ReadWriteCloser {
	return stdio{in: os.Stdin, out: os.Stdout}
}

type stdio struct {
	in  *os.File
	out *os.File
}

func (s stdio) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s stdio) Write(p []byte) (int, error) { return s.out.Write(p) }

func (s stdio) Close() error {
	inErr := s.in.Close()
	outErr := s.out.Close()
	if inErr != nil {
		return inErr
	}
	return outErr
}
