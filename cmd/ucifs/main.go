/*
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/pchambers/ucifs/pkg/fusefs"
	"github.com/pchambers/ucifs/pkg/store"
	"github.com/pchambers/ucifs/pkg/utils"
	"github.com/pchambers/ucifs/pkg/vfs"
)

var logger = utils.GetLogger("main")

func main() {
	app := &cli.App{
		Name:  "ucifs",
		Usage: "mount a configuration database as a filesystem",
		Commands: []*cli.Command{
			mountFlags(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.Fatalf("%s", err)
	}
}

func mountFlags() *cli.Command {
	return &cli.Command{
		Name:      "mount",
		Usage:     "mount the configuration database at MOUNTPOINT",
		ArgsUsage: "MOUNTPOINT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "store", Value: "memory://", Usage: "backing store DSN: memory:// or redis://host:port/db"},
			&cli.StringFlag{Name: "config-dir", Value: "/etc/config", Usage: "directory to enumerate configuration packages from"},
			&cli.DurationFlag{Name: "refresh", Value: 5 * time.Second, Usage: "root directory reconcile coalescing window"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
			&cli.StringFlag{Name: "log", Usage: "redirect log output to a file"},
			&cli.BoolFlag{Name: "no-color", Usage: "disable colorized log levels"},
			&cli.StringFlag{Name: "metrics", Usage: "address to serve Prometheus metrics on (empty disables)"},
			&cli.UintFlag{Name: "uid", Value: uint(os.Getuid()), Usage: "uid reported for every entry"},
			&cli.UintFlag{Name: "gid", Value: uint(os.Getgid()), Usage: "gid reported for every entry"},
		},
		Action: runMount,
	}
}

func runMount(ctx *cli.Context) error {
	utils.SetDebug(ctx.Bool("debug"))
	if ctx.Bool("no-color") {
		utils.DisableLogColor()
	}
	if logFile := ctx.String("log"); logFile != "" {
		utils.SetOutFile(logFile)
	}

	if ctx.Args().Len() < 1 {
		return fmt.Errorf("MOUNTPOINT is required")
	}
	mountpoint := ctx.Args().Get(0)

	backing, err := openStore(ctx.String("store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	registry := prometheus.NewRegistry()
	if addr := ctx.String("metrics"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Warnf("metrics server: %s", err)
			}
		}()
	}

	mount, err := vfs.New(vfs.Config{
		Source:          vfs.NewDirSource(ctx.String("config-dir")),
		Store:           backing,
		Uid:             uint32(ctx.Uint("uid")),
		Gid:             uint32(ctx.Uint("gid")),
		RefreshInterval: ctx.Duration("refresh"),
		Registerer:      registry,
	})
	if err != nil {
		return fmt.Errorf("init mount state: %w", err)
	}
	defer mount.Destroy()

	root := fusefs.NewRoot(mount)
	server, err := fs.Mount(mountpoint, root, &fs.Options{
		MountOptions: fuse.MountOptions{
			AllowOther: false,
			FsName:     "ucifs",
			Name:       "ucifs",
			Debug:      ctx.Bool("debug"),
		},
		UID: uint32(ctx.Uint("uid")),
		GID: uint32(ctx.Uint("gid")),
	})
	if err != nil {
		return fmt.Errorf("mount %s: %w", mountpoint, err)
	}

	logger.Infof("mounted at %s, store=%s", mountpoint, ctx.String("store"))
	server.Wait()
	return nil
}

// openStore parses the --store DSN into a concrete store.Store:
// "memory://" for an in-process store, or "redis://host:port/db" for a
// Redis-backed one.
func openStore(dsn string) (store.Store, error) {
	switch {
	case dsn == "" || dsn == "memory://":
		return store.NewMemory(), nil
	case strings.HasPrefix(dsn, "redis://"):
		rest := strings.TrimPrefix(dsn, "redis://")
		addr := rest
		db := 0
		if idx := strings.LastIndex(rest, "/"); idx >= 0 {
			addr = rest[:idx]
			if n, err := strconv.Atoi(rest[idx+1:]); err == nil {
				db = n
			}
		}
		return store.NewRedis(addr, db)
	default:
		return nil, fmt.Errorf("unrecognized store DSN %q", dsn)
	}
}
