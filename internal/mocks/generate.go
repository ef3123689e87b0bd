package mocks

//go:generate mockgen -destination=./mock_provider.go -package=mocks github.com/atharvakonge/papertrade/internal/market Provider
//go:generate mockgen -destination=./mock_cache.go -package=mocks github.com/atharvakonge/papertrade/internal/market Cache
