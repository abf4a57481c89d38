//go:build unix

package hellm

const processGroups = true
