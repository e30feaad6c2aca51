package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/store"
)

const checkpointPrefix = model.CheckpointFilePrefix + "_"

// SaveCheckpoint appends wc to the checkpoint history of its namespace as
// json_data/checkpoint_{seq}_{phase}.json.
func SaveCheckpoint(ctx context.Context, cs *store.CaseStore, wc model.WorkflowContext) (model.ArtifactInfo, error) {
	infos, err := cs.List(ctx, model.CategoryJSONData, checkpointPrefix)
	if err != nil {
		return model.ArtifactInfo{}, fmt.Errorf("save checkpoint: %w", err)
	}
	name := fmt.Sprintf("%s%04d_%s.json", checkpointPrefix, len(infos)+1, wc.Phase)
	info, err := cs.UploadJSON(ctx, name, wc)
	if err != nil {
		return model.ArtifactInfo{}, fmt.Errorf("save checkpoint: %w", err)
	}
	return info, nil
}

// LoadCheckpoint reads the newest checkpoint of cs.
func LoadCheckpoint(ctx context.Context, cs *store.CaseStore) (model.WorkflowContext, store.Lookup, error) {
	infos, err := cs.List(ctx, model.CategoryJSONData, checkpointPrefix)
	if err != nil {
		return model.WorkflowContext{}, store.Absent, fmt.Errorf("load checkpoint: %w", err)
	}
	if len(infos) == 0 {
		return model.WorkflowContext{}, store.Absent, nil
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Filename > infos[j].Filename })

	var wc model.WorkflowContext
	found, err := cs.DownloadStructured(ctx, string(model.CategoryJSONData)+"/"+infos[0].Filename, &wc)
	if err != nil {
		return model.WorkflowContext{}, store.Absent, fmt.Errorf("load checkpoint: %w", err)
	}
	return wc, found, nil
}

// History lists the checkpoint filenames of cs, oldest first.
func History(ctx context.Context, cs *store.CaseStore) ([]string, error) {
	infos, err := cs.List(ctx, model.CategoryJSONData, checkpointPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, i := range infos {
		if strings.HasSuffix(i.Filename, ".json") {
			names = append(names, i.Filename)
		}
	}
	sort.Strings(names)
	return names, nil
}
