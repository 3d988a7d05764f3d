// Package tiles provides tile raster scheduling and resource pooling for
// tile-based compositors.
//
// # Overview
//
// A compositor divides layers into tiles, rasterizes each tile into a
// backend buffer (a shared-memory bitmap or a GPU texture), and draws the
// buffers. Two pieces of that pipeline live here:
//
//   - resource and pool: fixed-size, fixed-format buffers recycled through a
//     pool with in-use, busy and unused buckets, byte and count limits, and
//     a self-cancelling expiration timer.
//   - tiletask and runner: raster and image-decode tasks batched into a
//     TileTaskQueue, executed on a worker pool in dependency order, with
//     per-task-set completion callbacks delivered on the origin thread.
//
// The tiling package covers the tiling-set range and coverage queries the
// scheduler consumes.
//
// # Threading
//
// One origin thread owns the pool, the runner façade and all client
// callbacks. The origin package models it as a TaskRunner: either a Loop
// goroutine or a ManualRunner driven by tests. Worker goroutines only run
// task bodies.
//
// # Quick Start
//
//	loop := origin.NewLoop()
//	defer loop.Stop()
//
//	provider := resource.NewProvider(resource.NewBitmapBackend())
//	rp := pool.New(provider, loop)
//	strategy, err := runner.NewBitmap(provider)
//	if err != nil {
//		log.Fatal(err)
//	}
//	r := runner.New(loop, strategy)
//	r.SetClient(client)
//
//	loop.Sync(func() {
//		res, _ := rp.AcquireResource(tiles.Sz(256, 256), gputypes.TextureFormatRGBA8Unorm)
//		task := tiletask.NewRasterTask(tiletask.RasterTaskParams{Resource: res, Source: src})
//		var q tiletask.TileTaskQueue
//		q.Append(task, tiletask.NewTaskSetCollection(tiletask.All))
//		r.ScheduleTasks(&q)
//	})
//
// # Logging
//
// Logging is silent by default. See SetLogger.
package tiles

// Version is the current version of the module.
const Version = "0.1.0"
