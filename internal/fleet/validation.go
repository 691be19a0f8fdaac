package fleet

import (
	"errors"
	"net"
	"strconv"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func init() {
	_ = validate.RegisterValidation("hostaddr", validateHostAddr)
}

// ErrNoEndpoint marks a record that cannot be dialed at all.
// Such hosts short-circuit before any connection attempt.
var ErrNoEndpoint = errors.New("address/user missing")

// validateHostAddr accepts an IP, a hostname, or host:port.
func validateHostAddr(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	if addr == "" {
		return true // presence is checked separately, per operation
	}
	if host, port, err := net.SplitHostPort(addr); err == nil {
		if _, perr := strconv.Atoi(port); perr != nil {
			return false
		}
		addr = host
	}
	return addr != ""
}

// Validate checks structural constraints on a host record.
func (h HostRecord) Validate() error {
	return validate.Struct(h)
}

// Endpoint resolves the dial target, applying the defaults for port and
// user. It fails with ErrNoEndpoint when address or user cannot be
// resolved.
func (h HostRecord) Endpoint() (addr string, user string, err error) {
	user = h.User
	if user == "" {
		user = "root"
	}
	if h.Addr == "" {
		return "", "", ErrNoEndpoint
	}
	port := h.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(h.Addr, strconv.Itoa(port)), user, nil
}
