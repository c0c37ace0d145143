package fiscal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		ok   bool
	}{
		{name: "nil", err: nil},
		{name: "deadline", err: fmt.Errorf("envio: %w", context.DeadlineExceeded), ok: true},
		{name: "timeout de rede", err: &net.OpError{Op: "read", Err: timeoutErr{}}, ok: true},
		{name: "conexão recusada", err: &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, ok: true},
		{name: "conexão reiniciada", err: fmt.Errorf("leitura: %w", syscall.ECONNRESET), ok: true},
		{name: "erro de negócio", err: errors.New("xml inválido")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, ok := ClassifyTransportError(tt.err)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.err, u.Cause)
			}
		})
	}
}
