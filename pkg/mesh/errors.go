package mesh

import "errors"

var (
    ErrNoPath          = errors.New("mesh: no path to destination")
    ErrLinkTimeout     = errors.New("mesh: link establishment timed out")
    ErrUnknownLink     = errors.New("mesh: unknown link")
    ErrLinkNotActive   = errors.New("mesh: link not active")
    ErrPayloadTooLarge = errors.New("mesh: payload exceeds MDU")
)
