//go:build windows

package netstack

import (
    "mavmesh/pkg/transport"
    "mavmesh/pkg/transport/winpipe"
)

func newWinPipeTransport() (transport.Transport, error) { return winpipe.New(), nil }

