// Package adaptor exposes time-varying mesh streams through a polling
// interface.
//
// A DataAdaptor is positioned on one time step at a time. The caller
// enumerates the step's meshes, asks for a mesh structure, attaches the
// arrays it needs and then advances:
//
//	da, err := registry.Open(ctx, "yaml", "run.yaml", stream.Whole)
//	if err != nil {
//	    return err
//	}
//	defer da.Close()
//	for !da.Done() {
//	    for i := 0; i < da.NumberOfMeshes(); i++ {
//	        ...
//	    }
//	    if end, err := da.Advance(ctx); err != nil || end {
//	        break
//	    }
//	}
//
// # Transports
//
// The transport method passed to Open selects a Source:
//
//   - memory: streams registered in-process with AddMemoryStream
//   - yaml: a multi-document YAML file read one document per step
//   - follow: a YAML file still being appended by its producer; the stream
//     ends when "<stream>.done" appears
//   - sqlite: a stream database written by package store
//
// Every transport shares the same DataAdaptor implementation, so meshes,
// partitions and array attachment behave identically across them.
package adaptor
