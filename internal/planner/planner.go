package planner

import "strings"

// Build computes a migration plan from already-fetched identities, artifacts
// and object keys. It performs no I/O and is deterministic for identical input.
//
// File matching is a raw substring test of the artifact id against the full
// key, and the destination key replaces the first occurrence of the current
// owner token with the organization id.
func Build(identities []Identity, artifacts ArtifactSet, files FileSet) *Plan {
	// First identity wins when stable ids collide.
	byStableID := make(map[string]Identity, len(identities))
	for _, identity := range identities {
		if identity.StableID == "" {
			continue
		}
		if _, ok := byStableID[identity.StableID]; !ok {
			byStableID[identity.StableID] = identity
		}
	}

	plan := &Plan{
		Total:      len(artifacts.Artifacts),
		TableName:  artifacts.TableName,
		BucketName: files.BucketName,
		Migrate:    MigrateSection{Plans: []Item{}},
		Orphaned:   OrphanedSection{ArtifactIDs: []string{}},
	}

	for _, artifact := range artifacts.Artifacts {
		identity, ok := byStableID[artifact.CurrentOwner]
		if !ok {
			plan.Orphaned.ArtifactIDs = append(plan.Orphaned.ArtifactIDs, artifact.ArtifactID)
			continue
		}

		transfers := matchFiles(files.Keys, artifact, identity.OrganizationID)
		if len(transfers) == 0 {
			continue
		}

		plan.Migrate.Plans = append(plan.Migrate.Plans, Item{
			ArtifactID: artifact.ArtifactID,
			Status:     StatusMigrate,
			Stage:      StageInitial,
			OwnerTransfer: Transfer{
				From: artifact.CurrentOwner,
				To:   identity.OrganizationID,
			},
			Files: transfers,
		})
	}

	plan.Migrate.Count = len(plan.Migrate.Plans)
	plan.Orphaned.Count = len(plan.Orphaned.ArtifactIDs)
	return plan
}

func matchFiles(keys []string, artifact Artifact, newOwner string) []Transfer {
	var transfers []Transfer
	for _, key := range keys {
		if artifact.ArtifactID == "" || !strings.Contains(key, artifact.ArtifactID) {
			continue
		}
		transfers = append(transfers, Transfer{
			From: key,
			To:   strings.Replace(key, artifact.CurrentOwner, newOwner, 1),
		})
	}
	return transfers
}
