/*
 * Copyright 2024 Galactica Network
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	// Version is the version of the service
	Version = ""

	// GitCommit is the git commit of the service
	GitCommit = ""

	// GoVersion is the go version of the service
	GoVersion = fmt.Sprintf("go version %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	// BuildDeps is the build dependencies of the service
	BuildDeps = depsFromBuildInfo()
)

type versionInfo struct {
	Version   string     `json:"version"`
	GitCommit string     `json:"git_commit"`
	GoVersion string     `json:"go_version"`
	BuildDeps []buildDep `json:"build_deps,omitempty"`
}

func CreateVersion() *cobra.Command {
	var long bool

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !long {
				cmd.Println(Version)
				return nil
			}

			out, err := json.MarshalIndent(versionInfo{
				Version:   Version,
				GitCommit: GitCommit,
				GoVersion: GoVersion,
				BuildDeps: BuildDeps,
			}, "", "  ")
			if err != nil {
				return err
			}

			cmd.Println(string(out))
			return nil
		},
	}

	versionCmd.Flags().BoolVar(&long, "long", false, "print the commit, go version and build dependencies")

	return versionCmd
}

func depsFromBuildInfo() (deps []buildDep) {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}

	for _, dep := range buildInfo.Deps {
		deps = append(deps, buildDep{dep})
	}

	return
}

type buildDep struct {
	*debug.Module
}

func (d buildDep) String() string {
	if d.Replace != nil {
		return fmt.Sprintf("%s@%s => %s@%s", d.Path, d.Version, d.Replace.Path, d.Replace.Version)
	}

	return fmt.Sprintf("%s@%s", d.Path, d.Version)
}

func (d buildDep) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }
