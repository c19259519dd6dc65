package service

import "github.com/spectra-gallery/spectra-playground/models"

// AuthorizeMutation decides whether identity may change resource. Ownerless
// resources are open to everyone; owned ones only to their owner.
func AuthorizeMutation(resource models.Resource, identity *models.Identity) error {
	if resource.OwnerId == "" {
		return nil
	}
	if identity != nil && identity.Id == resource.OwnerId {
		return nil
	}
	return ErrForbidden
}
