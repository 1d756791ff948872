package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/himanstore/dmsales-backend/internal/types"
)

func TestEnsureAdLinkHealsDrift(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewLinkRepo(db, log)
	ctx := context.Background()

	ptr := types.Pointer{Type: types.LinkTypeStory, ID: "story.1"}
	rightProduct := uuid.New()
	wrongProduct := uuid.New()

	// Story link points at the right product, ad link drifted.
	if err := db.Create(&types.StoryLink{
		PointerType: ptr.Type, PointerID: ptr.ID,
		ProductID: rightProduct, Confidence: 0.9, AutoLinked: true,
	}).Error; err != nil {
		t.Fatalf("seed story link: %v", err)
	}
	if err := db.Create(&types.AdLink{
		PointerType: ptr.Type, PointerID: ptr.ID,
		ProductID: wrongProduct, Confidence: 0.4, AutoLinked: true,
	}).Error; err != nil {
		t.Fatalf("seed ad link: %v", err)
	}

	if err := repo.EnsureAdLink(ctx, nil, ptr, rightProduct, 0.9, true); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	healed, err := repo.GetAdLink(ctx, nil, ptr)
	if err != nil {
		t.Fatalf("get ad link: %v", err)
	}
	if healed == nil || healed.ProductID != rightProduct {
		t.Fatalf("ad link not healed: %+v", healed)
	}
	if healed.Confidence != 0.9 {
		t.Fatalf("confidence not mirrored: %v", healed.Confidence)
	}

	var count int64
	db.Model(&types.AdLink{}).Count(&count)
	if count != 1 {
		t.Fatalf("ad link rows: want=1 got=%d", count)
	}
}

func TestUpsertAdKeepsStoredFields(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewLinkRepo(db, log)
	ctx := context.Background()

	ptr := types.Pointer{Type: types.LinkTypeStory, ID: "story.keep"}
	if err := repo.UpsertAd(ctx, nil, ptr, "Kimono Story", "https://cdn/story.jpg"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// A later pointer event without metadata must not blank the row.
	if err := repo.UpsertAd(ctx, nil, ptr, "", ""); err != nil {
		t.Fatalf("empty upsert: %v", err)
	}

	var ad types.Ad
	if err := db.First(&ad, "pointer_type = ? AND pointer_id = ?", ptr.Type, ptr.ID).Error; err != nil {
		t.Fatalf("load ad: %v", err)
	}
	if ad.Title != "Kimono Story" || ad.MediaURL != "https://cdn/story.jpg" {
		t.Fatalf("stored fields blanked: %+v", ad)
	}

	// Fresh values still overwrite.
	if err := repo.UpsertAd(ctx, nil, ptr, "", "https://cdn/story-v2.jpg"); err != nil {
		t.Fatalf("refresh upsert: %v", err)
	}
	if err := db.First(&ad, "pointer_type = ? AND pointer_id = ?", ptr.Type, ptr.ID).Error; err != nil {
		t.Fatalf("reload ad: %v", err)
	}
	if ad.MediaURL != "https://cdn/story-v2.jpg" {
		t.Fatalf("fresh media url not applied: %q", ad.MediaURL)
	}
	if ad.Title != "Kimono Story" {
		t.Fatalf("title lost on partial update: %q", ad.Title)
	}

	var count int64
	db.Model(&types.Ad{}).Where("pointer_type = ? AND pointer_id = ?", ptr.Type, ptr.ID).Count(&count)
	if count != 1 {
		t.Fatalf("ad rows: want=1 got=%d", count)
	}
}

func TestCreateAutoLinkedSet(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewLinkRepo(db, log)
	ctx := context.Background()

	ptr := types.Pointer{Type: types.LinkTypeStory, ID: "story.2"}
	productID := uuid.New()

	if err := repo.CreateAutoLinkedSet(ctx, nil, ptr, productID, 0.82, "", "https://cdn/story.jpg"); err != nil {
		t.Fatalf("create set: %v", err)
	}

	story, err := repo.GetStoryLink(ctx, nil, ptr)
	if err != nil {
		t.Fatalf("get story link: %v", err)
	}
	if story == nil || story.ProductID != productID || !story.AutoLinked {
		t.Fatalf("story link wrong: %+v", story)
	}

	ad, err := repo.GetAdLink(ctx, nil, ptr)
	if err != nil {
		t.Fatalf("get ad link: %v", err)
	}
	if ad == nil || ad.ProductID != productID || !ad.AutoLinked {
		t.Fatalf("ad link wrong: %+v", ad)
	}
	if story.Confidence != ad.Confidence {
		t.Fatalf("confidence diverged: %v vs %v", story.Confidence, ad.Confidence)
	}

	var ads int64
	db.Model(&types.Ad{}).Where("pointer_type = ? AND pointer_id = ?", ptr.Type, ptr.ID).Count(&ads)
	if ads != 1 {
		t.Fatalf("ad bookkeeping rows: want=1 got=%d", ads)
	}
}

func TestSetManualLinkSyncsBothTables(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewLinkRepo(db, log)
	ctx := context.Background()

	ptr := types.Pointer{Type: types.LinkTypePost, ID: "post.3"}
	autoProduct := uuid.New()
	manualProduct := uuid.New()

	if err := repo.CreateAutoLinkedSet(ctx, nil, ptr, autoProduct, 0.75, "", ""); err != nil {
		t.Fatalf("seed auto link: %v", err)
	}

	if err := repo.SetManualLink(ctx, nil, ptr, manualProduct); err != nil {
		t.Fatalf("manual link: %v", err)
	}

	story, _ := repo.GetStoryLink(ctx, nil, ptr)
	ad, _ := repo.GetAdLink(ctx, nil, ptr)
	if story == nil || ad == nil {
		t.Fatalf("links missing after override")
	}
	if story.ProductID != manualProduct || ad.ProductID != manualProduct {
		t.Fatalf("override not applied: story=%s ad=%s", story.ProductID, ad.ProductID)
	}
	if story.AutoLinked || ad.AutoLinked {
		t.Fatalf("manual links must clear auto_linked")
	}
}

func TestGetStoryLinkAbsent(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewLinkRepo(db, log)

	link, err := repo.GetStoryLink(context.Background(), nil, types.Pointer{Type: types.LinkTypeStory, ID: "nope"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if link != nil {
		t.Fatalf("want nil for absent link, got %+v", link)
	}
}
