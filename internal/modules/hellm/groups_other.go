//go:build !unix

package hellm

const processGroups = false
