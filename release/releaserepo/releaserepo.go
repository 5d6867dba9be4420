package releaserepo

import (
	"context"
	"errors"
	"time"

	"github.com/anyproto/any-sync/app"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/masterplanhq/masterplan-server/db"
	"github.com/masterplanhq/masterplan-server/domain"
	"github.com/masterplanhq/masterplan-server/release/releaseapi"
)

const CName = "release.repo"

func New() ReleaseRepo {
	return new(releaseRepo)
}

type ReleaseRepo interface {
	ProjectGet(ctx context.Context, slug string) (project domain.Project, err error)
	ProjectUpsert(ctx context.Context, project domain.Project) (err error)

	VersionCreateDraft(ctx context.Context, slug string) (version domain.ReleaseVersion, err error)
	VersionGet(ctx context.Context, slug string, versionNumber int) (version domain.ReleaseVersion, err error)
	VersionList(ctx context.Context, slug string) (versions []domain.ReleaseVersion, err error)
	VersionUpdateDraft(ctx context.Context, slug string, versionNumber int, draft domain.DraftContent) (err error)
	VersionArchive(ctx context.Context, slug string, versionNumber int) (err error)

	// FinalizePublish flips the draft to published and updates the project's
	// current release pointer in one transaction. Returns
	// ErrConcurrencyConflict when the version is no longer a draft.
	FinalizePublish(ctx context.Context, version domain.ReleaseVersion, releaseId string, publishedAt int64, publishedBy string) (err error)

	IntegrationConfigGet(ctx context.Context, slug string) (conf domain.IntegrationConfig, err error)
	IntegrationConfigUpsert(ctx context.Context, conf domain.IntegrationConfig) (err error)

	app.ComponentRunnable
}

var (
	versionIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "projectSlug", Value: 1}, {Key: "versionNumber", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "projectSlug", Value: 1}, {Key: "status", Value: 1}},
		},
	}
)

type releaseRepo struct {
	db           db.Database
	projectsColl *mongo.Collection
	versionsColl *mongo.Collection
	integrColl   *mongo.Collection
}

func (r *releaseRepo) Name() (name string) {
	return CName
}

func (r *releaseRepo) Init(a *app.App) (err error) {
	r.db = a.MustComponent(db.CName).(db.Database)
	r.projectsColl = r.db.Db().Collection("projects")
	r.versionsColl = r.db.Db().Collection("versions")
	r.integrColl = r.db.Db().Collection("integrationConfigs")
	return
}

func (r *releaseRepo) Run(ctx context.Context) (err error) {
	return ensureIndexes(ctx, r.versionsColl, versionIndexes...)
}

func ensureIndexes(ctx context.Context, coll *mongo.Collection, indexes ...mongo.IndexModel) (err error) {
	existingIndexes, err := coll.Indexes().ListSpecifications(ctx)
	if err != nil {
		return
	}
	if len(existingIndexes) <= 1 {
		_, err = coll.Indexes().CreateMany(ctx, indexes)
	}
	return
}

func (r *releaseRepo) ProjectGet(ctx context.Context, slug string) (project domain.Project, err error) {
	if err = r.projectsColl.FindOne(ctx, bson.D{{Key: "_id", Value: slug}}).Decode(&project); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Project{}, releaseapi.ErrProjectNotFound
		}
		return
	}
	return
}

func (r *releaseRepo) ProjectUpsert(ctx context.Context, project domain.Project) (err error) {
	now := time.Now().Unix()
	if project.CreatedAt == 0 {
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	_, err = r.projectsColl.ReplaceOne(
		ctx,
		bson.D{{Key: "_id", Value: project.Slug}},
		project,
		options.Replace().SetUpsert(true),
	)
	return
}

func (r *releaseRepo) VersionCreateDraft(ctx context.Context, slug string) (version domain.ReleaseVersion, err error) {
	err = r.db.Tx(ctx, func(txCtx mongo.SessionContext) (err error) {
		if _, err = r.ProjectGet(txCtx, slug); err != nil {
			return
		}
		count, err := r.versionsColl.CountDocuments(txCtx, bson.D{
			{Key: "projectSlug", Value: slug},
			{Key: "status", Value: domain.VersionStatusDraft},
		})
		if err != nil {
			return
		}
		if count > 0 {
			return releaseapi.ErrDraftExists
		}
		maxNumber, err := r.maxVersionNumber(txCtx, slug)
		if err != nil {
			return
		}
		version = domain.ReleaseVersion{
			ProjectSlug:   slug,
			VersionNumber: maxNumber + 1,
			Status:        domain.VersionStatusDraft,
			CreatedAt:     time.Now().Unix(),
		}
		version.Id = primitive.NewObjectID()
		if _, err = r.versionsColl.InsertOne(txCtx, version); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return releaseapi.ErrDraftExists
			}
			return
		}
		return
	})
	return
}

func (r *releaseRepo) maxVersionNumber(ctx context.Context, slug string) (max int, err error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "versionNumber", Value: -1}}).SetProjection(bson.D{{Key: "versionNumber", Value: 1}})
	var doc = struct {
		VersionNumber int `bson:"versionNumber"`
	}{}
	if err = r.versionsColl.FindOne(ctx, bson.D{{Key: "projectSlug", Value: slug}}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return
	}
	return doc.VersionNumber, nil
}

func (r *releaseRepo) VersionGet(ctx context.Context, slug string, versionNumber int) (version domain.ReleaseVersion, err error) {
	query := bson.D{{Key: "projectSlug", Value: slug}, {Key: "versionNumber", Value: versionNumber}}
	if err = r.versionsColl.FindOne(ctx, query).Decode(&version); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ReleaseVersion{}, releaseapi.ErrVersionNotFound
		}
		return
	}
	return
}

func (r *releaseRepo) VersionList(ctx context.Context, slug string) (versions []domain.ReleaseVersion, err error) {
	opts := options.Find().SetSort(bson.D{{Key: "versionNumber", Value: -1}})
	cur, err := r.versionsColl.Find(ctx, bson.D{{Key: "projectSlug", Value: slug}}, opts)
	if err != nil {
		return
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	for cur.Next(ctx) {
		var version domain.ReleaseVersion
		if err = cur.Decode(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, cur.Err()
}

func (r *releaseRepo) VersionUpdateDraft(ctx context.Context, slug string, versionNumber int, draft domain.DraftContent) (err error) {
	res, err := r.versionsColl.UpdateOne(
		ctx,
		bson.D{
			{Key: "projectSlug", Value: slug},
			{Key: "versionNumber", Value: versionNumber},
			{Key: "status", Value: domain.VersionStatusDraft},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "draft", Value: draft}}}},
	)
	if err != nil {
		return
	}
	if res.MatchedCount == 0 {
		return releaseapi.ErrVersionNotFound
	}
	return
}

func (r *releaseRepo) VersionArchive(ctx context.Context, slug string, versionNumber int) (err error) {
	return r.db.Tx(ctx, func(txCtx mongo.SessionContext) (err error) {
		project, err := r.ProjectGet(txCtx, slug)
		if err != nil {
			return
		}
		version, err := r.VersionGet(txCtx, slug, versionNumber)
		if err != nil {
			return
		}
		if version.Status != domain.VersionStatusPublished {
			return releaseapi.ErrValidationFailed
		}
		if version.ReleaseId != "" && version.ReleaseId == project.CurrentReleaseId {
			return releaseapi.ErrVersionIsCurrent
		}
		_, err = r.versionsColl.UpdateOne(
			txCtx,
			bson.D{{Key: "_id", Value: version.Id}},
			bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: domain.VersionStatusArchived}}}},
		)
		return
	})
}

func (r *releaseRepo) FinalizePublish(ctx context.Context, version domain.ReleaseVersion, releaseId string, publishedAt int64, publishedBy string) (err error) {
	return r.db.Tx(ctx, func(txCtx mongo.SessionContext) (err error) {
		res, err := r.versionsColl.UpdateOne(
			txCtx,
			bson.D{{Key: "_id", Value: version.Id}, {Key: "status", Value: domain.VersionStatusDraft}},
			bson.D{{Key: "$set", Value: bson.D{
				{Key: "status", Value: domain.VersionStatusPublished},
				{Key: "releaseId", Value: releaseId},
				{Key: "publishedAt", Value: publishedAt},
				{Key: "publishedBy", Value: publishedBy},
			}}},
		)
		if err != nil {
			return
		}
		if res.ModifiedCount == 0 {
			return releaseapi.ErrConcurrencyConflict
		}
		_, err = r.projectsColl.UpdateOne(
			txCtx,
			bson.D{{Key: "_id", Value: version.ProjectSlug}},
			bson.D{{Key: "$set", Value: bson.D{
				{Key: "currentReleaseId", Value: releaseId},
				{Key: "updatedAt", Value: time.Now().Unix()},
			}}},
		)
		return
	})
}

func (r *releaseRepo) IntegrationConfigGet(ctx context.Context, slug string) (conf domain.IntegrationConfig, err error) {
	if err = r.integrColl.FindOne(ctx, bson.D{{Key: "_id", Value: slug}}).Decode(&conf); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.IntegrationConfig{}, releaseapi.ErrProjectNotFound
		}
		return
	}
	conf.HasCredentials = !conf.Credentials.IsZero()
	return
}

func (r *releaseRepo) IntegrationConfigUpsert(ctx context.Context, conf domain.IntegrationConfig) (err error) {
	_, err = r.integrColl.ReplaceOne(
		ctx,
		bson.D{{Key: "_id", Value: conf.ProjectSlug}},
		conf,
		options.Replace().SetUpsert(true),
	)
	return
}

func (r *releaseRepo) Close(ctx context.Context) (err error) {
	return
}
