// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package config

import "os"

const (
	systemConfigPath = "/etc/adaptyst/adaptyst.conf"
	localConfigName  = ".adaptyst.conf"
)

// ResolvePaths applies the ADAPTYST_CONFIG/ADAPTYST_LOCAL_CONFIG/
// ADAPTYST_SCRIPT_DIR env-var overrides spec.md §6 names, falling back
// to the system config path and $HOME/.adaptyst.conf.
func ResolvePaths() (systemPath, localPath, scriptDir string) {
	systemPath = systemConfigPath
	if v := os.Getenv("ADAPTYST_CONFIG"); v != "" {
		systemPath = v
	}

	localPath = localConfigDefault()
	if v := os.Getenv("ADAPTYST_LOCAL_CONFIG"); v != "" {
		localPath = v
	}

	scriptDir = os.Getenv("ADAPTYST_SCRIPT_DIR")
	return systemPath, localPath, scriptDir
}

func localConfigDefault() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/" + localConfigName
}
