//go:build tools

// Package team_chat pins mockgen in go.mod so the go:generate directives
// producing mocks/ resolve the same version on every checkout.
package team_chat

import (
	_ "go.uber.org/mock/mockgen"
)
