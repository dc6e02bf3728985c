// Package neolink adapts cameras exposed by a neolink bridge to the
// device host.
//
// neolink publishes each camera's state under neolink/<camera>/status and
// listens for commands under neolink/<camera>/control and
// neolink/<camera>/query. A Camera subscribes to the status topics through
// a shared MQTT session and turns them into a CameraState: connection,
// motion with an inactivity timeout, battery level, the last preview image
// and PTZ presets. Control methods publish the matching commands.
//
// Switch covers the on/off abilities (siren, floodlight, floodlight tasks,
// PIR). Each is registered with the host as a sub-device of its camera.
//
// Provider owns the session and the camera set:
//
//	provider, err := neolink.NewProvider(neolink.ProviderOptions{
//	    Session:  session,
//	    Registry: registry,
//	    Settings: settings,
//	})
//	if err := provider.Start(ctx, cfg.Cameras); err != nil { ... }
//	defer provider.Stop(ctx)
//
// After the session reconnects every camera re-subscribes; handlers are
// keyed by the camera's native id so re-subscribing never duplicates them.
package neolink
