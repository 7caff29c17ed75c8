package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Content types this server can produce and consume, mirroring camisole's
// own JSON/msgpack duality: msgpack lets a collaborator get raw stdout/
// stderr bytes back without a base64 detour.
const (
	TypeJSON    = "application/json"
	TypeMsgpack = "application/msgpack"
)

var supportedTypes = []string{TypeJSON, TypeMsgpack}

// acceptedTypes parses an Accept header into the subset of supportedTypes
// it names, in preference order, falling back to JSON alone when the
// header names neither. An absent header counts as "*/*", which accepts
// both types, JSON first.
func acceptedTypes(header string) []string {
	if header == "" {
		header = "*/*"
	}
	type weighted struct {
		typ string
		q   float64
	}
	var weights []weighted
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		typ := part
		q := 1.0
		if i := strings.Index(part, ";"); i >= 0 {
			typ = strings.TrimSpace(part[:i])
			params := part[i+1:]
			for _, p := range strings.Split(params, ";") {
				p = strings.TrimSpace(p)
				if strings.HasPrefix(p, "q=") {
					if parsed, err := strconv.ParseFloat(p[2:], 64); err == nil {
						q = parsed
					}
				}
			}
		}
		if typ == "*/*" {
			for _, s := range supportedTypes {
				weights = append(weights, weighted{s, q})
			}
			continue
		}
		for _, s := range supportedTypes {
			if typ == s {
				weights = append(weights, weighted{s, q})
			}
		}
	}
	if len(weights) == 0 {
		return []string{TypeJSON}
	}
	// stable sort by descending q, preserving header order for ties
	sort.SliceStable(weights, func(a, b int) bool { return weights[a].q > weights[b].q })
	out := make([]string, 0, len(weights))
	seen := make(map[string]bool)
	for _, w := range weights {
		if !seen[w.typ] {
			out = append(out, w.typ)
			seen[w.typ] = true
		}
	}
	return out
}

// decodeBody unmarshals body per contentType, defaulting to JSON for
// anything else (including an absent header), the same default camisole
// applies.
func decodeBody(contentType string, body []byte, v any) error {
	if strings.HasPrefix(contentType, TypeMsgpack) {
		return msgpack.Unmarshal(body, v)
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

// writeNegotiated encodes payload as the first accepted type whose encoder
// succeeds and writes it, or responds 406 with a hint to ask for msgpack
// when no accepted type could encode the payload.
func writeNegotiated(c echo.Context, code int, payload any) error {
	accepted := acceptedTypes(c.Request().Header.Get(echo.HeaderAccept))
	for _, typ := range accepted {
		switch typ {
		case TypeJSON:
			data, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			return c.Blob(code, TypeJSON, data)
		case TypeMsgpack:
			data, err := msgpack.Marshal(payload)
			if err != nil {
				continue
			}
			return c.Blob(code, TypeMsgpack, data)
		}
	}
	hint := "use 'Accept: " + TypeMsgpack + "' to be able to receive binary payloads"
	return c.JSON(http.StatusNotAcceptable, map[string]string{"error": hint})
}
