// Package config handles loading and validating the hwmc daemon configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with HWMC_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Defaults mirror the values the array has always run with: an etcd store at
// etcdv3service.sas.pvt:2379, a one second poll, Lua scripts in ../lua-scripts,
// and minimum module versions of hardware 1.300, firmware 1.029, bootloader 0.940.
//
// Usage:
//
//	cfg, err := config.Load("configs/hwmc.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Store.Endpoints)
package config
