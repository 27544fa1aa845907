package sign

import (
    "crypto/sha256"
    "encoding/base64"
    "encoding/hex"
    "strconv"
    "strings"
)

// AnnounceTranscript builds the canonical transcript used for signing/verifying
// destination announces. Format:
//   mavmesh:announce|v=1|dest=<hex>|name=<app.aspects>|pub=<b64url>|ts=<unix_ms>|nonce=<b64url>|data=<b64url(sha256(appData))>
func AnnounceTranscript(dest []byte, fullName string, pub, nonce []byte, tsUnixMS int64, appData []byte) []byte {
    b64 := base64.RawURLEncoding
    dh := sha256.Sum256(appData)
    var sb strings.Builder
    sb.Grow(160 + len(fullName))
    sb.WriteString("mavmesh:announce|v=1|dest=")
    sb.WriteString(hex.EncodeToString(dest))
    sb.WriteString("|name=")
    sb.WriteString(fullName)
    sb.WriteString("|pub=")
    sb.WriteString(b64.EncodeToString(pub))
    sb.WriteString("|ts=")
    sb.WriteString(strconv.FormatInt(tsUnixMS, 10))
    sb.WriteString("|nonce=")
    sb.WriteString(b64.EncodeToString(nonce))
    sb.WriteString("|data=")
    sb.WriteString(b64.EncodeToString(dh[:]))
    return []byte(sb.String())
}

// LinkProofTranscript builds the transcript a destination signs to prove it
// accepted a link request. Format:
//   mavmesh:linkproof|v=1|link=<hex>|dest=<hex>|ts=<unix_ms>
func LinkProofTranscript(linkID, dest []byte, tsUnixMS int64) []byte {
    var sb strings.Builder
    sb.Grow(96)
    sb.WriteString("mavmesh:linkproof|v=1|link=")
    sb.WriteString(hex.EncodeToString(linkID))
    sb.WriteString("|dest=")
    sb.WriteString(hex.EncodeToString(dest))
    sb.WriteString("|ts=")
    sb.WriteString(strconv.FormatInt(tsUnixMS, 10))
    return []byte(sb.String())
}
