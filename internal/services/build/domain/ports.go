package domain

import (
	factsvc "visawh/internal/services/facts/service"
	valsvc "visawh/internal/services/validate/service"
)

// Ports are dependencies injected into the build module
type Ports struct {
	Facts     *factsvc.Service
	Validator *valsvc.Service
	Publisher Publisher // optional
}
