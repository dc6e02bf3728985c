// Package process supervises the neolink binary.
//
// neolinkd can either attach to an externally managed neolink or run it
// itself. In the latter case a Manager starts `neolink mqtt-rtsp`, captures
// its output into the service log, and restarts it with exponential backoff
// when it exits. The restart counter resets once a run has been stable for
// StableThreshold.
//
//	cfg, err := process.NeolinkConfig(appCfg.Neolink.Process)
//	if err != nil {
//	    return err
//	}
//	mgr := process.NewManager(cfg)
//	mgr.SetLogger(logger)
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
