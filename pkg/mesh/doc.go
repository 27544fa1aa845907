// Package mesh implements a small multi-hop overlay: signed destination
// announces flooded between neighbors, a path table learned from them, and
// point-to-point links routed hop by hop. Links deliver payloads of at most
// MDU bytes and report lifecycle changes as LinkEvents.
package mesh
