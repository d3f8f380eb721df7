package riskengine

import "errors"

var (
	ErrMarketNotFound = errors.New("riskengine: market not found")
	ErrMarketExists   = errors.New("riskengine: market already exists")
)
