// Package images builds the demo's container images with the local docker.
package images

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"coffeectl/internal/config"
	"coffeectl/internal/runner"
	"coffeectl/pkg/logging"
)

// Builder runs docker builds.
type Builder struct {
	runner runner.Runner
	// Out receives the build output. When nil the output is captured and
	// only reported on failure.
	Out io.Writer
}

// NewBuilder returns a Builder that runs docker through r.
func NewBuilder(r runner.Runner) *Builder {
	return &Builder{runner: r}
}

// Build builds img, tagging it with img.Name.
func (b *Builder) Build(ctx context.Context, img config.ImageDefinition) error {
	if img.Name == "" {
		return fmt.Errorf("image definition without a name")
	}
	buildContext := img.Context
	if buildContext == "" {
		buildContext = "."
	}
	dockerfile := img.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	if !filepath.IsAbs(dockerfile) {
		dockerfile = filepath.Join(buildContext, dockerfile)
	}

	args := []string{"build", "-t", img.Name, "-f", dockerfile, buildContext}
	logging.Info("Images", "Building %s from %s", img.Name, buildContext)

	if b.Out != nil {
		if err := b.runner.Stream(ctx, b.Out, b.Out, "docker", args...); err != nil {
			return fmt.Errorf("building %s: %w", img.Name, err)
		}
		return nil
	}
	res, err := b.runner.Run(ctx, "docker", args...)
	if err != nil {
		return fmt.Errorf("building %s: %w", img.Name, err)
	}
	logging.Debug("Images", "Build output for %s:\n%s", img.Name, strings.TrimSpace(res.Stdout+res.Stderr))
	return nil
}

// BuildAll builds every image in order and stops at the first failure.
func (b *Builder) BuildAll(ctx context.Context, imgs []config.ImageDefinition) error {
	for _, img := range imgs {
		if err := b.Build(ctx, img); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether the local docker has an image tagged name.
func (b *Builder) Exists(ctx context.Context, name string) (bool, error) {
	res, err := b.runner.Run(ctx, "docker", "image", "inspect", "--format", "{{.Id}}", name)
	if err == nil {
		return strings.TrimSpace(res.Stdout) != "", nil
	}
	if runner.ExitCode(err) == 1 && strings.Contains(strings.ToLower(res.Stderr), "no such image") {
		return false, nil
	}
	return false, fmt.Errorf("inspecting image %s: %w", name, err)
}

// Names returns the tags of imgs.
func Names(imgs []config.ImageDefinition) []string {
	names := make([]string, 0, len(imgs))
	for _, img := range imgs {
		names = append(names, img.Name)
	}
	return names
}
