package rpc

import "fmt"

// Tier is the access level a procedure demands. Privileged implies authenticated.
type Tier int

const (
	Public Tier = iota + 1
	Authenticated
	Privileged
)

func (t Tier) String() string {
	switch t {
	case Public:
		return "public"
	case Authenticated:
		return "authenticated"
	case Privileged:
		return "privileged"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

func (t Tier) valid() bool {
	switch t {
	case Public, Authenticated, Privileged:
		return true
	default:
		return false
	}
}

// Kind decides the HTTP verb: queries are GET, mutations are POST.
type Kind int

const (
	Query Kind = iota + 1
	Mutation
)

func (k Kind) String() string {
	switch k {
	case Query:
		return "query"
	case Mutation:
		return "mutation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}
