package storage

import "io"

func GenerateCodeFrom(src io.Reader) (string, error) { return generateCode(src) }

func SetCodeGenerator(g *Gateway, f func() (string, error)) { g.newCode = f }
