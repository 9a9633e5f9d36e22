package tools

import (
	"context"
	"errors"
)

// Toolchain pairs a resolver with an installer over the same cache root.
type Toolchain struct {
	Resolver  *Resolver
	Installer *Installer
}

// Ensure resolves req and, when nothing matches, installs the version into
// the managed cache. With the installer offline a miss is returned as a
// *NotFoundError joined with ErrNetworkDisabled.
func (tc *Toolchain) Ensure(ctx context.Context, req Request) (Resolution, error) {
	res, err := tc.Resolver.Resolve(ctx, req)
	if err != nil {
		return Resolution{}, err
	}
	if res.Found() {
		return res, nil
	}
	if tc.Installer == nil {
		return res, res.Err()
	}
	if tc.Installer.Offline {
		return res, errors.Join(res.Err(), ErrNetworkDisabled)
	}

	info, err := tc.Installer.Install(ctx, InstallRequest{
		Tool:            req.Tool,
		RequiredVersion: req.RequiredVersion,
		ProjectRoot:     req.ProjectRoot,
	})
	if err != nil {
		return res, err
	}
	return Resolution{Kind: Resolved, Info: info, RequiredVersion: req.RequiredVersion}, nil
}
